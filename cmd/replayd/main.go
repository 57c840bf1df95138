// Command replayd records web pages as session-replay wireframes.
//
// Usage:
//
//	replayd -config replay.yaml                 # record pages from YAML config
//	replayd -url https://example.com            # record one page to stdout
//	replayd -snapshot https://example.com       # print one snapshot and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/replay"
	"github.com/hazyhaar/replay/api"
	"github.com/hazyhaar/replay/idgen"
	"github.com/hazyhaar/replay/recorder"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to replay.yaml config file")
	singleURL := flag.String("url", "", "record a single URL (stdout sink)")
	snapshotURL := flag.String("snapshot", "", "print one snapshot of a URL and exit")
	privacy := flag.String("privacy", "mask", "privacy level for -url and -snapshot: allow, mask")
	allowPrivate := flag.Bool("allow-private", false, "allow loopback and private addresses for -url and -snapshot")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *snapshotURL != "":
		err = runSnapshot(ctx, logger, *snapshotURL, *privacy, *allowPrivate)
	case *singleURL != "":
		err = runSingle(ctx, logger, *singleURL, *privacy, *allowPrivate)
	case *configPath != "":
		err = runConfig(ctx, logger, *configPath)
	default:
		fmt.Fprintln(os.Stderr, "usage: replayd -config <file> | -url <url> | -snapshot <url>")
		os.Exit(2)
	}
	if err != nil {
		logger.Error("replayd: fatal", "error", err)
		os.Exit(1)
	}
}

func runSnapshot(ctx context.Context, logger *slog.Logger, url, privacy string, allowPrivate bool) error {
	cfg := replay.DefaultConfig()
	cfg.Fetch.AllowPrivate = allowPrivate
	r := replay.New(cfg, logger)
	defer r.Stop()

	snap, err := r.SnapshotOnce(ctx, url, recorder.ParsePrivacyLevel(privacy))
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func runSingle(ctx context.Context, logger *slog.Logger, url, privacy string, allowPrivate bool) error {
	cfg := replay.DefaultConfig()
	cfg.Fetch.AllowPrivate = allowPrivate
	cfg.Pages = []replay.PageConfig{{
		ID:      idgen.New(),
		URL:     url,
		Privacy: privacy,
	}}
	cfg.ApplyDefaults()

	r := replay.New(cfg, logger, replay.NewStdoutSink(nil))
	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	<-ctx.Done()
	return r.Stop()
}

func runConfig(ctx context.Context, logger *slog.Logger, path string) error {
	cfg, err := replay.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.MCP.Enabled {
		for _, sc := range cfg.Sinks {
			if sc.Type == "stdout" {
				return errors.New("mcp on stdio cannot share stdout with a stdout sink")
			}
		}
	}

	sinks, st, err := replay.OpenSinks(cfg, logger)
	if err != nil {
		return err
	}

	r := replay.New(cfg, logger, sinks...)
	if err := r.Start(ctx); err != nil {
		r.Stop()
		return fmt.Errorf("start: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if st != nil && cfg.Store.Retention > 0 {
		g.Go(func() error {
			st.RunRetention(gctx, cfg.Store.Retention, logger)
			return nil
		})
	}
	if cfg.HTTP.Addr != "" {
		opts := []api.Option{api.WithGatherer(r.Registry()), api.WithLogger(logger)}
		if st != nil {
			opts = append(opts, api.WithStore(st))
		}
		srv := api.New(r, opts...)
		g.Go(func() error { return srv.Serve(gctx, cfg.HTTP.Addr) })
	}
	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "replay", Version: version}, nil)
		r.RegisterMCP(mcpSrv)
		g.Go(func() error {
			logger.Info("replayd: mcp on stdio")
			return mcpSrv.Run(gctx, &mcp.StdioTransport{})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("replayd: server stopped", "error", err)
	}
	return r.Stop()
}
