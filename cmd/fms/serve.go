package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fms/internal/cli/config"
	"fms/internal/execution"
	"fms/internal/server"
	"fms/internal/server/controller"
	"fms/internal/server/service"
	"fms/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job and account HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func newAuthService(cfg config.AuthConfig) (*service.AuthService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("server.auth.secret (or %s) is required; set server.auth.disabled to serve without tokens", config.AuthSecretEnv)
	}
	return service.NewAuthService(cfg.Secret, cfg.Issuer), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appCfg
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	gin.SetMode(gin.ReleaseMode)

	a, err := newApp(cmd.Context(), cfg, appOptions{engine: true, runtimeMetrics: true})
	if err != nil {
		return err
	}
	defer a.close()

	var quota *execution.QuotaAccount
	if cfg.Session.QuotaSeconds > 0 {
		quota = execution.NewQuotaAccount(cfg.Session.QuotaSeconds)
	}
	deps := server.Deps{
		Orchestrator: a.orch,
		Accounts:     a.accounts,
		Jobs: controller.JobOptions{
			Quota:       quota,
			Slots:       service.NewSlots(cfg.Server.MaxConcurrentJobs, cfg.Server.SlotWait),
			Defaults:    cfg.Defaults,
			DefaultUser: cfg.Ledger.User,
		},
		Gatherer:     a.metrics.Gatherer(),
		AuthDisabled: cfg.Server.Auth.Disabled,
	}
	if cfg.Server.Auth.Disabled {
		logger.Warn(cmd.Context(), "api authentication is disabled", zap.String("addr", cfg.Server.Addr))
	} else {
		auth, err := newAuthService(cfg.Server.Auth)
		if err != nil {
			return err
		}
		deps.Auth = auth
	}
	router := server.NewRouter(deps)
	httpServer := server.NewHTTPServer(server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, router)

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "fms http server started", zap.String("addr", cfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
