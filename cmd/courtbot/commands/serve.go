package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courtbot/internal/auth"
	"courtbot/internal/errs"
	httpx "courtbot/internal/http"
	"courtbot/internal/logging"
)

func NewServeCmd() *cobra.Command {
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the SMS webhook and admin API",
		Long: `Serve POST /sms for inbound texts, /auth/login and /admin/* (when
JWT_SECRET is set) and /health on HTTP_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			deps := httpx.Deps{DB: a.db, Conversation: a.conversation(), Cipher: a.cipher}
			if a.cfg.JWTSecret != "" {
				deps.JWT = auth.NewJWT(a.cfg.JWTSecret)
			}

			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           httpx.NewRouter(a.cfg, deps),
				ReadHeaderTimeout: 5 * time.Second,
			}

			if withScheduler {
				go func() {
					err := a.worker(jobCycle, a.scheduledTask()).Run(ctx)
					if err != nil && !errors.Is(err, context.Canceled) {
						logging.Error(ctx, "scheduler stopped", slog.Any("err", errs.Loggable(err)))
					}
				}()
			}

			errc := make(chan error, 1)
			go func() {
				logging.Info(ctx, "listening", slog.String("addr", a.cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run the ingest and notify schedule in this process")
	return cmd
}
