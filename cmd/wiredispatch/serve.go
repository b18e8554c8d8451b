package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredispatch/internal/app"
	"github.com/vovakirdan/wiredispatch/internal/config"
	"github.com/vovakirdan/wiredispatch/internal/log"
)

type serveOptions struct {
	addr               string
	readHeaderTimeout  time.Duration
	shutdownTimeout    time.Duration
	maxMessageBytes    int64
	sendBuffer         int
	rateLimitPerMinute int
	channels           []string
}

func serveCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(root, opts.overrides())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, &cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&opts.readHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 0, "Graceful shutdown timeout")
	flags.Int64Var(&opts.maxMessageBytes, "max-message-bytes", 0, "Maximum inbound WebSocket frame size")
	flags.IntVar(&opts.sendBuffer, "send-buffer", 0, "Per-connection outbound buffer")
	flags.IntVar(&opts.rateLimitPerMinute, "rate-limit", 0, "Inbound frames per minute per connection (0 disables)")
	flags.StringSliceVar(&opts.channels, "channel", nil, "Channel to declare at startup (repeatable)")

	return cmd
}

func (o *serveOptions) overrides() config.Config {
	return config.Config{
		Addr:               o.addr,
		ReadHeaderTimeout:  o.readHeaderTimeout,
		ShutdownTimeout:    o.shutdownTimeout,
		MaxMessageBytes:    o.maxMessageBytes,
		SendBuffer:         o.sendBuffer,
		RateLimitPerMinute: o.rateLimitPerMinute,
		Channels:           o.channels,
	}
}

// loadConfig resolves defaults, file, env and flag overrides, then builds the
// logger the resolved config asks for.
func loadConfig(root *rootOptions, overrides config.Config) (config.Config, *zerolog.Logger, error) {
	bootLogger := log.New(root.logLevel, root.logFormat)

	cfg, path, err := config.Load(bootLogger, root.configPath)
	if err != nil {
		return cfg, bootLogger, err
	}

	overrides.LogLevel = root.logLevel
	overrides.LogFormat = root.logFormat
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting wiredispatch server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
