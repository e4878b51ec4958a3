package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/endpointgen/internal/build"
	"github.com/DeusData/endpointgen/internal/config"
	"github.com/DeusData/endpointgen/internal/parser"
	"github.com/DeusData/endpointgen/internal/tools"
	"github.com/DeusData/endpointgen/internal/watcher"
)

type Globals struct {
	Config  string `help:"Path to the config file." default:"endpointgen.yaml" short:"c" type:"path"`
	Verbose bool   `help:"Enable debug logging." short:"v"`
}

type CLI struct {
	Globals

	Generate GenerateCmd `cmd:"" help:"Generate artifacts from the endpoint sources once."`
	Watch    WatchCmd    `cmd:"" help:"Generate, then regenerate as endpoint sources change."`
	MCP      MCPCmd      `cmd:"" name:"mcp" help:"Serve the generator as MCP tools over stdio."`
	AST      ASTCmd      `cmd:"" name:"ast" help:"Print the syntax tree of a TypeScript file."`
	Version  VersionCmd  `cmd:"" help:"Print version information."`
}

type GenerateCmd struct {
	Force bool `help:"Ignore the build manifest and re-extract every file." short:"f"`
}

func (c *GenerateCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctrl := build.New(cfg)
	ctrl.Force = c.Force

	ctx, stop := signalContext()
	defer stop()
	res, err := ctrl.Run(ctx)
	if err != nil {
		return err
	}
	switch res.Status {
	case build.StatusNoFiles:
		fmt.Fprintf(os.Stderr, "no endpoint files under %s\n", cfg.SourceDir)
	case build.StatusUnchanged:
		fmt.Fprintln(os.Stderr, "nothing changed")
	default:
		fmt.Fprintf(os.Stderr, "%d endpoints, %d route files, %d written\n",
			res.Endpoints, res.RouteFiles, len(res.Written))
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "skipped %s\n", w.String())
		}
	}
	return nil
}

type WatchCmd struct {
	Debounce time.Duration `help:"Quiescence window before regenerating (e.g. 150ms)."`
}

func (c *WatchCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	opts := []watcher.Option{watcher.WithDebounce(c.Debounce)}
	opts = append(opts, watcher.OnRegenerate(func(res *build.Result) {
		fmt.Fprintf(os.Stderr, "%d endpoints, %d route files\n", res.Endpoints, res.RouteFiles)
	}))

	ctx, stop := signalContext()
	defer stop()
	w := watcher.New(cfg, opts...)
	if err := w.Start(ctx); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- w.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return w.Stop()
	}
}

type MCPCmd struct {
	Watch bool `help:"Also keep artifacts in sync with source changes." short:"w"`
}

func (c *MCPCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ctrl := build.New(cfg)
	srv := tools.NewServer(ctrl, Version())

	ctx, stop := signalContext()
	defer stop()

	if c.Watch {
		w := watcher.New(cfg, watcher.WithController(ctrl))
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := w.Stop(); err != nil {
				slog.Warn("watch.stop", "err", err)
			}
		}()
	}

	if err := srv.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("endpointgen", Version())
	return nil
}

// load reads the config file, falling back to conventional defaults rooted
// at the working directory when the default file does not exist.
func (g *Globals) load() (*config.Config, error) {
	if err := parser.Init(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(g.Config)
	if err == nil {
		return cfg, nil
	}
	if filepath.Base(g.Config) != config.DefaultFile || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	slog.Debug("config.default", "missing", g.Config)
	return config.LoadDefault(filepath.Dir(g.Config))
}

func (g *Globals) setupLogging() {
	level := slog.LevelInfo
	if g.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("endpointgen"),
		kong.Description("Compile TypeScript endpoint declarations into a typed client, store and route handlers."),
		kong.UsageOnError(),
	)
	cli.setupLogging()
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
