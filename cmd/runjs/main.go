package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scratchpad/internal/client"
	"github.com/GriffinCanCode/scratchpad/internal/host"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/config"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scratchpad/internal/protocol"
	"github.com/GriffinCanCode/scratchpad/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// runner executes one script and returns its transcript
type runner func(ctx context.Context, req protocol.RunRequest) (protocol.RunResponse, error)

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("runjs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serverURL := fs.String("server", "", "Run against a scratchpad server instead of in-process")
	timeout := fs.Duration("timeout", 5*time.Second, "Per-script timeout")
	configPath := fs.String("config", "", "Path to a YAML or TOML config file")
	fetch := fs.Bool("fetch", false, "Expose fetch() to scripts (local mode)")
	verbose := fs.Bool("v", false, "Log engine activity to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: runjs [-server URL] [-timeout 5s] <glob>...")
		return 2
	}

	files, err := expand(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "runjs: %v\n", err)
		return 2
	}
	if len(files) == 0 {
		fmt.Fprintln(stderr, "runjs: no files matched")
		return 2
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Development: true})
	if err != nil {
		fmt.Fprintf(stderr, "runjs: %v\n", err)
		return 2
	}
	defer logger.Sync()

	var exec runner
	if *serverURL != "" {
		c := client.New(client.Options{BaseURL: *serverURL, RetryCount: 2, Logger: logger.Logger})
		exec = c.Run
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "runjs: %v\n", err)
			return 2
		}
		cfg.Sandbox.FetchEnabled = cfg.Sandbox.FetchEnabled || *fetch
		opts := server.HostOptions(cfg.Sandbox)
		opts.Logger = logger.Logger
		exec = localRunner(opts)
	}

	failed := false
	for _, file := range files {
		source, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(stderr, "runjs: %v\n", err)
			failed = true
			continue
		}

		resp, err := exec(ctx, protocol.RunRequest{Source: string(source), TimeoutMs: timeout.Milliseconds()})
		if err != nil {
			logger.Debug("Run failed", zap.String("file", file), zap.Error(err))
			fmt.Fprintf(stderr, "runjs: %s: %v\n", file, err)
			failed = true
			if ctx.Err() != nil {
				break
			}
			continue
		}

		printTranscript(stdout, file, resp)
		if resp.Outcome != "completed" {
			failed = true
		}
	}

	if failed {
		return 1
	}
	return 0
}

// localRunner runs scripts in-process on one host channel
func localRunner(opts host.Options) runner {
	return func(ctx context.Context, req protocol.RunRequest) (protocol.RunResponse, error) {
		channel := host.NewChannel(opts)
		defer channel.Close()

		future, err := channel.Execute(req.Sandbox())
		if err != nil {
			return protocol.RunResponse{}, err
		}
		result, err := future.Wait(ctx)
		if err != nil {
			return protocol.RunResponse{}, err
		}
		return protocol.NewRunResponse(result), nil
	}
}

// expand resolves glob patterns into a sorted, de-duplicated file list.
// A pattern without glob syntax is taken literally.
func expand(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 && !hasMeta(pattern) {
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func hasMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func printTranscript(w io.Writer, file string, resp protocol.RunResponse) {
	fmt.Fprintf(w, "== %s (%s, %dms)\n", file, resp.Outcome, resp.DurationMs)
	for _, rec := range resp.Logs {
		if rec.Line > 0 {
			fmt.Fprintf(w, "[%s] %d: %s\n", rec.Kind, rec.Line, rec.Content)
		} else {
			fmt.Fprintf(w, "[%s] %s\n", rec.Kind, rec.Content)
		}
	}
}
