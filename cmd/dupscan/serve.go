package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/halcyonlabs/dupscan/config"
	"github.com/halcyonlabs/dupscan/routing"
	"github.com/halcyonlabs/dupscan/scan"
	"github.com/halcyonlabs/dupscan/telemetry"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an HTTP service that scans on request",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.Init(telemetry.Config{})
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			gin.SetMode(gin.ReleaseMode)
			engine := gin.New()
			engine.Use(gin.Recovery())
			engine.Use(otelgin.Middleware("dupscan"))

			engine.GET("/healthz", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
			engine.GET("/metrics", gin.WrapH(tel.MetricsHandler()))
			engine.POST("/v1/scan", handleScan(cfg))

			srv := &http.Server{
				Addr:              addr,
				Handler:           engine,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("http server listening", slog.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case sig := <-stop:
				slog.Info("shutting down", slog.String("signal", sig.String()))
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8088", "listen address")
	return cmd
}

// scanRequest is the POST /v1/scan body.
type scanRequest struct {
	Root            string `json:"root" binding:"required"`
	DeadlineSeconds int    `json:"deadline_seconds"`
}

// handleScan runs a scan per request. Routed payloads are returned inline
// alongside the report; serve mode has no external collaborators attached.
func handleScan(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req scanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		if req.DeadlineSeconds > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.DeadlineSeconds)*time.Second)
			defer cancel()
		}

		var payloads bytes.Buffer
		sink := routing.NewWriterSink(&payloads)
		router := routing.NewRouter(sink, sink)

		comps, err := scan.Build(ctx, cfg, req.Root, router)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer comps.Close()

		files, err := scan.DiscoverFiles(req.Root)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		report, err := comps.Engine.Scan(ctx, files)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"report":   report,
			"payloads": payloads.String(),
		})
	}
}
