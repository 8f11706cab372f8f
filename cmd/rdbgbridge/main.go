// Command rdbgbridge exposes a running rdbg (Ruby debugger) session to an
// MCP-speaking agent: connect, set breakpoints, step, evaluate code, and
// inspect state over the same tool-call surface an interactive debugging
// human would use.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brennhill/rdbgbridge/internal/config"
	"github.com/brennhill/rdbgbridge/internal/rlog"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		transport      string
		port           int
		host           string
		sessionTimeout int
	)

	cmd := &cobra.Command{
		Use:     "rdbgbridge",
		Short:   "Bridge an rdbg debugging session to an MCP tool surface",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFlags(transport, host, port, sessionTimeout)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", string(config.TransportStdio), `tool-RPC transport: "stdio" or "http"`)
	cmd.Flags().IntVar(&port, "port", 8787, "listen port when --transport=http")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "listen host when --transport=http")
	cmd.Flags().IntVar(&sessionTimeout, "session-timeout", 0, "idle session timeout in seconds (default 300)")

	return cmd
}

// newZapLogger builds a JSON core writing to stderr, matching
// kdlbs-kandev's internal/common/logger.NewLogger construction.
func newZapLogger() *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
	return zap.New(core)
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout is the MCP stdio transport's wire when --transport=stdio;
	// every log line goes to stderr instead.
	log := rlog.FromZap(newZapLogger())
	srv := newBridgeServer(cfg, log)
	defer srv.registry.DisconnectAll(true)

	switch cfg.Transport {
	case config.TransportStdio:
		return srv.runStdio(ctx)
	case config.TransportHTTP:
		return srv.runHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
