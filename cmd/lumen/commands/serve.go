package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arkologystudio/lumen/internal/api"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the diagnostics HTTP API",
		Long: `Start the HTTP API that exposes site registration, authenticated and
anonymous diagnostics, report retrieval, health and Prometheus metrics.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (overrides config)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (overrides config)")
	_ = viper.BindPFlag("serve.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("serve.jwt_secret", cmd.Flags().Lookup("jwt-secret"))

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(true)
	if err != nil {
		return fmt.Errorf("failed to initialize diagnostics engine: %w", err)
	}
	defer eng.Close()

	listen := eng.cfg.Listen
	if v := viper.GetString("serve.listen"); v != "" {
		listen = v
	}
	jwtSecret := eng.cfg.JWTSecret
	if v := viper.GetString("serve.jwt_secret"); v != "" {
		jwtSecret = v
	}
	if jwtSecret == "" {
		return fmt.Errorf("jwt secret is required (set jwt_secret in config or LUMEN_JWT_SECRET)")
	}

	apiServer := api.NewServer(eng.service, eng.sites, eng.entitlements, jwtSecret, eng.metrics, logrus.StandardLogger())
	srv := &http.Server{
		Addr:              listen,
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Listening on %s", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
