package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jad-hamza/vscoq/stm"
	"github.com/jad-hamza/vscoq/stmlog"
	"github.com/jad-hamza/vscoq/watch"
)

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	logger := stmlog.Default()

	metrics := stm.NewMetrics(prometheus.DefaultRegisterer)
	ctrl := stm.New(newTransportFactory(), stm.NopCallbacks{}, cfg, metrics, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer ctrl.Dispose()

	watcher, err := watch.New(filePathFlag, ctrl, logger)
	if err != nil {
		return fmt.Errorf("stmctl serve: %w", err)
	}
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("file watcher stopped", "error", err)
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("stmctl"))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/sentences", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": len(ctrl.GetSentences())})
	})

	server := &http.Server{Addr: addr, Handler: router}
	go func() {
		logger.Info("serve listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	return ctrl.Shutdown(shutdownCtx)
}
