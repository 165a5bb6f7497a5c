// Command zwintd is a demonstration host for the zwint engine: it opens
// a real serial controller device, accepts one host connection over a
// Unix-domain socket, loads a YAML rule file (with hot reload), and
// runs the interception engine between them until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tarm/serial"

	"github.com/gengen/zwint"
	"github.com/gengen/zwint/internal/config"
)

func main() {
	var (
		devicePath string
		baud       int
		listenPath string
		rulesPath  string
		notifyAddr string
		debug      bool
	)

	root := &cobra.Command{
		Use:   "zwintd",
		Short: "serial-line Z-Wave interceptor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			runID := uuid.NewString()
			logger = logger.With("run_id", runID)

			return run(cmd.Context(), logger, devicePath, baud, listenPath, rulesPath, notifyAddr)
		},
	}

	root.Flags().StringVar(&devicePath, "device", "/dev/ttyUSB0", "Z-Wave controller serial device")
	root.Flags().IntVar(&baud, "baud", 115200, "serial baud rate")
	root.Flags().StringVar(&listenPath, "listen", "/tmp/zwintd.sock", "Unix-domain socket the home-automation host connects to")
	root.Flags().StringVar(&rulesPath, "rules", "", "YAML rule file (required)")
	root.Flags().StringVar(&notifyAddr, "notify-addr", "127.0.0.1:3480", "loopback HTTP notification target")
	root.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.MarkFlagRequired("rules")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, devicePath string, baud int, listenPath, rulesPath, notifyAddr string) error {
	ctrl, err := serial.OpenPort(&serial.Config{Name: devicePath, Baud: baud})
	if err != nil {
		return fmt.Errorf("open controller device %s: %w", devicePath, err)
	}
	defer ctrl.Close()

	os.Remove(listenPath)
	ln, err := net.Listen("unix", listenPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenPath, err)
	}
	defer ln.Close()
	defer os.Remove(listenPath)

	logger.Info("waiting for host connection", "socket", listenPath)
	host, err := acceptOne(ctx, ln)
	if err != nil {
		return err
	}
	defer host.Close()
	logger.Info("host connected")

	cfg := zwint.Config{NotifyAddr: notifyAddr}
	engine := zwint.NewEngine(cfg, logger)
	if err := engine.Register(ctx, devicePath, host, ctrl); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	defer engine.Unregister(nil)

	applied, err := loadAndApply(engine, rulesPath, nil, logger)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	watcher, err := config.NewWatcher(rulesPath, func(specs []zwint.RuleSpec, loadErr error) {
		if loadErr != nil {
			return
		}
		var reloadErr error
		applied, reloadErr = loadAndApply(engine, rulesPath, applied, logger)
		if reloadErr != nil {
			logger.Warn("rule reload application failed", "error", reloadErr)
		} else {
			logger.Info("rules reloaded", "count", len(applied))
		}
	}, logger)
	if err != nil {
		return fmt.Errorf("watch rules: %w", err)
	}
	defer watcher.Close()

	logger.Info("engine running", "device", devicePath, "rules", len(applied))
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// acceptOne waits for the single host connection zwintd serves, or
// ctx cancellation.
func acceptOne(ctx context.Context, ln net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		ln.Close()
		return nil, ctx.Err()
	case r := <-ch:
		return r.conn, r.err
	}
}

// loadAndApply parses rulesPath and (re)installs its rules on engine,
// first canceling every previously-applied rule, so rules kept in the
// new file are re-created with fresh arm and timeout state.
func loadAndApply(engine *zwint.Engine, rulesPath string, previous []zwint.RuleSpec, logger *slog.Logger) ([]zwint.RuleSpec, error) {
	specs, err := config.Load(rulesPath)
	if err != nil {
		return previous, err
	}

	for _, old := range previous {
		engine.Cancel(old.DeviceNum, old.Key)
	}

	var applyErr error
	for _, spec := range specs {
		var addErr error
		if spec.Direction == zwint.DirectionIntercept {
			addErr = engine.Intercept(spec)
		} else {
			addErr = engine.Monitor(spec)
		}
		if addErr != nil {
			logger.Warn("skipping invalid rule", "key", spec.Key, "error", addErr)
			applyErr = addErr
		}
	}
	return specs, applyErr
}
