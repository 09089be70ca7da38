// entries.go: hosts file parsing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package hosts

import (
	"net/netip"
	"strings"
)

// Entry is one address line of a hosts file.
type Entry struct {
	Line      int // 1-based
	Address   netip.Addr
	Hostnames []string
	Comment   string
}

// Parse returns the entries of a hosts file and the line numbers that
// carry text but no valid entry. Blank and comment-only lines are neither.
func Parse(text string) ([]Entry, []int) {
	var (
		entries []Entry
		invalid []int
	)
	for i, line := range strings.Split(text, "\n") {
		comment := ""
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			comment = strings.TrimSpace(line[idx+1:])
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil || len(fields) < 2 {
			invalid = append(invalid, i+1)
			continue
		}
		entries = append(entries, Entry{
			Line:      i + 1,
			Address:   addr,
			Hostnames: fields[1:],
			Comment:   comment,
		})
	}
	return entries, invalid
}

// Lookup returns the addresses mapped to hostname, in file order.
func Lookup(entries []Entry, hostname string) []netip.Addr {
	var out []netip.Addr
	for _, e := range entries {
		for _, h := range e.Hostnames {
			if strings.EqualFold(h, hostname) {
				out = append(out, e.Address)
				break
			}
		}
	}
	return out
}
