// main.go: devtools command entry point
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Command devtools is a headless shell over the bundled content plugins.
//
//	devtools plugins
//	devtools install JsonFormatPlugin
//	devtools format payload.json
//	devtools open --plugin MarkdownEditorPlugin README.md
package main

import (
	"fmt"
	"os"
)

func main() {
	a := newApp(os.Stdout)
	err := newRootCommand(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
