// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// diskfmt formats removable block devices via the system disk service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/diskfmt/diskfmt/backend"
	"github.com/diskfmt/diskfmt/backend/connect"
	"github.com/diskfmt/diskfmt/config"
	"github.com/diskfmt/diskfmt/format"
	"github.com/diskfmt/diskfmt/fsdetect"
	"github.com/diskfmt/diskfmt/tui"
)

var rootFlags struct {
	mockBackend bool
	verbose     bool
}

func main() {
	root := &cobra.Command{
		Use:           "diskfmt",
		Short:         "Format removable block devices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&rootFlags.mockBackend, "mock-backend", false, "use the mock backend instead of UDisks2")
	root.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(listCommand(), formatCommand(), cancelCommand(), configCommand(), uiCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stack is the wiring shared by the device-facing subcommands.
type stack struct {
	bus     *format.Bus
	adapter backend.Adapter
	orch    *format.Orchestrator
	logger  *zap.Logger
}

func newStack(ctx context.Context) *stack {
	logger := buildLogger(rootFlags.verbose)

	bus := format.NewBus(0)

	adapter := connect.New(ctx, connect.Options{
		UseMock: rootFlags.mockBackend,
		Logger:  logger,
		Status: func(line string) {
			bus.Emit(format.StatusMsg(line))
		},
	})

	return &stack{
		bus:     bus,
		adapter: adapter,
		orch:    format.New(adapter, bus, format.WithLogger(logger)),
		logger:  logger,
	}
}

func buildLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}

	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}

	return logger
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available block devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			s := newStack(ctx)

			devices, err := s.orch.ListDevices(ctx)

			drainPending(s.bus)

			if err != nil {
				fmt.Fprintf(os.Stderr, "List error: %v\n", err)
				os.Exit(1)
			}

			for _, d := range devices {
				fmt.Println(d)
			}
		},
	}
}

func formatCommand() *cobra.Command {
	var flags struct {
		path  string
		fs    string
		label string
		size  string
		table string
		quick bool
	}

	cmd := &cobra.Command{
		Use:   "format",
		Short: "Format a device or partition",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			s := newStack(ctx)

			req, err := buildRequest(ctx, flags.fs, flags.label, flags.size, flags.table, flags.quick)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid request: %v\n", err)
				os.Exit(2)
			}

			res, err := s.orch.Start(ctx, flags.path, req)
			if err != nil {
				drainPending(s.bus)

				var invalid *format.InvalidRequestError

				if errors.As(err, &invalid) {
					fmt.Fprintf(os.Stderr, "Invalid label: %v\n", invalid)
					os.Exit(2)
				}

				fmt.Fprintf(os.Stderr, "Format failed: %v\n", err)
				os.Exit(1)
			}

			if err = reportUntilCompleted(s.bus); err != nil {
				fmt.Fprintf(os.Stderr, "Format failed: %v\n", err)
				os.Exit(1)
			}

			fmt.Println("Ready:", res.ResultPath)
		},
	}

	cmd.Flags().StringVar(&flags.path, "path", "", "object path or device identifier")
	cmd.Flags().StringVar(&flags.fs, "fs", "", "filesystem type (vfat, exfat, ntfs, ext4, xfs, btrfs)")
	cmd.Flags().StringVar(&flags.label, "label", "", "volume label")
	cmd.Flags().BoolVar(&flags.quick, "quick", false, "quick format")
	cmd.Flags().StringVar(&flags.size, "size", "", `allocation unit choice (e.g. "Auto", "4096 bytes", "8 sectors")`)
	cmd.Flags().StringVar(&flags.table, "table", "", "partition table for whole-disk format (GPT or DOS)")

	cobra.CheckErr(cmd.MarkFlagRequired("path"))

	return cmd
}

func cancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job_id>",
		Short: "Cancel a running format by job id",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			s := newStack(ctx)

			if err := s.adapter.Cancel(ctx, args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Cancel failed: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Cancellation requested for job %s\n", args[0])
		},
	}
}

func configCommand() *cobra.Command {
	var flags struct {
		path  bool
		init  bool
		force bool
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or manage configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if flags.path {
				fmt.Println(config.Path())

				return nil
			}

			if flags.init {
				path, err := config.Init(flags.force)
				if err != nil {
					return err
				}

				fmt.Println("Initialized", path)

				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			fmt.Printf("theme = %q\nscheme = %q\ndefault_fs = %q\n", cfg.Theme, cfg.Scheme, cfg.DefaultFS)

			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.path, "path", false, "show the resolved config file path")
	cmd.Flags().BoolVar(&flags.init, "init", false, "initialize a config file if missing")
	cmd.Flags().BoolVar(&flags.force, "force", false, "overwrite existing config when used with --init")

	return cmd
}

func uiCommand() *cobra.Command {
	var flags struct {
		path   string
		fs     string
		label  string
		size   string
		table  string
		theme  string
		scheme string
		quick  bool
	}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Format with a fullscreen progress view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s := newStack(ctx)

			req, err := buildRequest(ctx, flags.fs, flags.label, flags.size, flags.table, flags.quick)
			if err != nil {
				return err
			}

			if devices, listErr := s.orch.ListDevices(ctx); listErr == nil {
				s.bus.Emit(format.DevicesMsg(devices))
			}

			if _, err = s.orch.Start(ctx, flags.path, req); err != nil {
				return err
			}

			cfg, cfgErr := config.Load()
			if cfgErr != nil {
				s.logger.Warn("failed to load config", zap.Error(cfgErr))
			}

			cfg = cfg.Effective(flags.theme, flags.scheme)

			view := tui.New(s.bus, s.orch, flags.path,
				tui.WithLogger(s.logger),
				tui.WithTheme(tui.NewTheme(cfg.Theme, cfg.Scheme)),
			)

			return view.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&flags.path, "path", "", "object path or device identifier")
	cmd.Flags().StringVar(&flags.fs, "fs", "", "filesystem type")
	cmd.Flags().StringVar(&flags.label, "label", "", "volume label")
	cmd.Flags().BoolVar(&flags.quick, "quick", false, "quick format")
	cmd.Flags().StringVar(&flags.size, "size", "", "allocation unit choice")
	cmd.Flags().StringVar(&flags.table, "table", "", "partition table for whole-disk format (GPT or DOS)")
	cmd.Flags().StringVar(&flags.theme, "theme", "", "view color theme (dark, light)")
	cmd.Flags().StringVar(&flags.scheme, "scheme", "", "progress bar scheme (ascii, block)")

	cobra.CheckErr(cmd.MarkFlagRequired("path"))

	return cmd
}

// buildRequest assembles the orchestrator request from CLI flags, falling
// back to the configured and then the detected default filesystem.
func buildRequest(ctx context.Context, fs, label, size, table string, quick bool) (format.Request, error) {
	if fs == "" {
		cfg, err := config.Load()
		if err == nil && cfg.DefaultFS != "" {
			fs = cfg.DefaultFS
		}
	}

	if fs == "" {
		if def, ok := fsdetect.Default(fsdetect.Supported(ctx)); ok {
			fs = def
		} else {
			fs = "vfat"
		}
	}

	req := format.Request{
		FS:             fs,
		Label:          label,
		Quick:          quick,
		AllocationUnit: format.ParseSizeChoice(size),
	}

	if table != "" {
		t, err := backend.ParseTable(table)
		if err != nil {
			return format.Request{}, err
		}

		req.Table = &t
	}

	return req, nil
}

// reportUntilCompleted renders bus messages to stderr until the terminal
// Completed arrives; it returns the job's failure, if any.
func reportUntilCompleted(bus *format.Bus) error {
	for msg := range bus.Receive() {
		switch msg := msg.(type) {
		case format.StatusMsg:
			fmt.Fprintln(os.Stderr, string(msg))
		case format.ProgressMsg:
			reportProgress(msg.Event)

			if completed, ok := msg.Event.(format.Completed); ok {
				return completed.Err
			}
		}
	}

	return errors.New("event stream closed unexpectedly")
}

func reportProgress(ev format.ProgressEvent) {
	switch ev := ev.(type) {
	case format.JobStarted:
		fmt.Fprintf(os.Stderr, "Job %s started\n", string(ev))
	case format.Percent:
		fmt.Fprintf(os.Stderr, "Progress: %.0f%%\n", float64(ev))
	case format.Rate:
		fmt.Fprintf(os.Stderr, "Rate: %d B/s\n", uint64(ev))
	case format.Message:
		fmt.Fprintln(os.Stderr, string(ev))
	case format.Completed:
		if ev.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ev.Err)
		} else {
			fmt.Fprintln(os.Stderr, "Completed")
		}
	}
}

// drainPending prints whatever is already buffered on the bus without
// blocking, so fallback warnings are not lost.
func drainPending(bus *format.Bus) {
	for {
		select {
		case msg := <-bus.Receive():
			if status, ok := msg.(format.StatusMsg); ok {
				fmt.Fprintln(os.Stderr, string(status))
			}
		default:
			return
		}
	}
}
