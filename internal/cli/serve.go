package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/factrag/internal/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification API over HTTP",
	Long: `Serve exposes the pipeline as an HTTP service:
  GET  /            service banner
  GET  /health      liveness
  POST /v1/verify   {"claim": "..."} -> verification response
  GET  /v1/info     pipeline components and retrieval settings
  GET  /metrics     Prometheus metrics

Example:
  factrag serve --addr :8001`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8001)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	addPipelineFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(a.pipeline, a.metrics.Handler(), server.Config{
		MaxClaimLength: cfg.Server.MaxClaimLength,
		Version:        Version,
	}, logger)

	fmt.Fprintf(os.Stderr, "✓ Serving %d facts on %s\n", a.store.Len(), cfg.Server.Addr)
	return srv.Run(ctx, cfg.Server.Addr)
}
