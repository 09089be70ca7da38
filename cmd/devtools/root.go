// root.go: command tree of the devtools shell
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	devtools "github.com/agilira/devtools"
	"github.com/agilira/devtools/plugins/jsonformat"
)

const settleTimeout = 10 * time.Second

// settler is implemented by plugins with a live analysis.
type settler interface {
	Settle(ctx context.Context) error
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "devtools",
		Short:         "Developer tools hosted as content plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			a.config = &cfg
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(devtools.ContextWithLogger(ctx, cfg.Logger))
			return nil
		},
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "host configuration file (JSON or YAML)")
	root.PersistentFlags().StringVar(&a.descriptorPath, "descriptor", "", "plugin descriptor file overriding the bundled list")
	root.PersistentFlags().StringVar(&a.statePath, "state", "", "installation state file (default is the user config directory)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newPluginsCommand(a),
		newInstallCommand(a),
		newUninstallCommand(a),
		newOpenCommand(a),
		newFormatCommand(a),
		newStructCommand(a),
		newMetricsCommand(a),
	)
	return root
}

func newPluginsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the plugin catalog and installation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := a.start()
			if err != nil {
				return err
			}
			catalog := host.Catalog()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tINSTALLED\tFILES")
			for _, pt := range catalog.Types() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n",
					pt.ID(),
					pt.Info().DisplayName,
					host.Installations().IsInstalled(pt),
					strings.Join(pt.Info().Extensions, ","))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			for _, d := range catalog.Diagnostics() {
				fmt.Fprintf(cmd.OutOrStdout(), "excluded: %s\n", d)
			}
			return nil
		},
	}
}

func newInstallCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install <plugin-id>",
		Short: "Install a plugin type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := a.lookupType(args[0])
			if err != nil {
				return err
			}
			if err := a.host.Installations().Install(pt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", pt.ID())
			return nil
		},
	}
}

func newUninstallCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <plugin-id>",
		Short: "Uninstall a plugin type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := a.lookupType(args[0])
			if err != nil {
				return err
			}
			if err := a.host.Installations().Uninstall(pt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %s\n", pt.ID())
			return nil
		},
	}
}

func newOpenCommand(a *app) *cobra.Command {
	var pluginID string
	var plain bool
	cmd := &cobra.Command{
		Use:   "open <file>",
		Short: "Open a file in a plugin and print its highlighted panes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := a.start()
			if err != nil {
				return err
			}
			var (
				ctx  devtools.ContextID
				inst *devtools.Instance
			)
			if pluginID != "" {
				pt, err := a.lookupType(pluginID)
				if err != nil {
					return err
				}
				ctx, inst, err = host.OpenTab(pt, args[0])
				if err != nil {
					return err
				}
			} else {
				ctx, inst, err = host.OpenFile(args[0])
				if err != nil {
					return err
				}
			}
			defer host.CloseTab(ctx)

			if err := settle(cmd.Context(), inst.Plugin()); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderView(inst.View(), !plain))
			return nil
		},
	}
	cmd.Flags().StringVar(&pluginID, "plugin", "", "plugin type to open the file with")
	cmd.Flags().BoolVar(&plain, "plain", false, "print without styling")
	return cmd
}

func newFormatCommand(a *app) *cobra.Command {
	var unescape bool
	cmd := &cobra.Command{
		Use:   "format <file>",
		Short: "Pretty print a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := jsonformat.Options{EscapeKeywords: unescape}
			return withJSONPlugin(a, args[0], opts, func(p *jsonformat.Plugin) error {
				if err := p.Format(); err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), p.Output().Text())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unescape, "unescape", false, `unescape \" and drop \n sequences first`)
	return cmd
}

func newStructCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "struct <file>",
		Short: "Generate Go types from a JSON object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJSONPlugin(a, args[0], jsonformat.Options{}, func(p *jsonformat.Plugin) error {
				if err := p.GenerateStruct(); err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), p.Output().Text())
				return nil
			})
		},
	}
}

func newMetricsCommand(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print host metrics, or serve them to Prometheus with --listen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := a.start()
			if err != nil {
				return err
			}
			if listen != "" {
				return serveMetrics(cmd.Context(), host, listen)
			}
			metrics := host.Metrics().GetMetrics()
			keys := make([]string, 0, len(metrics))
			for k := range metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", k, metrics[k])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to serve /metrics on (requires metrics.enabled)")
	return cmd
}

func serveMetrics(parent context.Context, host *devtools.Host, addr string) error {
	collector, ok := host.Metrics().(*devtools.PrometheusMetricsCollector)
	if !ok {
		return devtools.NewConfigValidationError("--listen requires metrics.enabled in the host configuration", nil)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	devtools.LoggerFromContext(parent).Info("Serving metrics", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// withJSONPlugin opens path in a JsonFormatPlugin tab for the duration of fn.
func withJSONPlugin(a *app, path string, opts jsonformat.Options, fn func(*jsonformat.Plugin) error) error {
	pt, err := a.lookupType(jsonformat.TypeID)
	if err != nil {
		return err
	}
	ctx, inst, err := a.host.OpenTab(pt, path)
	if err != nil {
		return err
	}
	defer a.host.CloseTab(ctx)

	p, ok := inst.Plugin().(*jsonformat.Plugin)
	if !ok {
		return devtools.NewCapabilityMismatchError(pt.ID(), "not the bundled JSON formatter")
	}
	p.SetOptions(opts)
	return fn(p)
}

func settle(parent context.Context, plugin devtools.ContentPlugin) error {
	s, ok := plugin.(settler)
	if !ok {
		return nil
	}
	if parent == nil {
		parent = context.Background()
	}
	logger := devtools.LoggerFromContext(parent)
	ctx, cancel := context.WithTimeout(parent, settleTimeout)
	defer cancel()
	if err := s.Settle(ctx); err != nil {
		logger.Warn("Analysis did not settle", "timeout", settleTimeout, "error", err)
		return err
	}
	logger.Debug("Analysis settled")
	return nil
}
