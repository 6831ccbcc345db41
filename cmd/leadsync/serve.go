package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/c2s-leadsync/internal/engine"
	"github.com/example/c2s-leadsync/internal/httpapi"
	"github.com/example/c2s-leadsync/internal/intake"
	"github.com/example/c2s-leadsync/internal/kafka/consumer"
	"github.com/example/c2s-leadsync/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the retry scheduler and the optional Kafka intake",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, base, err := bootstrap()
			if err != nil {
				return err
			}
			log := base.With().Str("command", "serve").Logger()

			eng, err := engine.New(cfg, base)
			if err != nil {
				return fmt.Errorf("engine init: %w", err)
			}
			defer func() {
				if err := eng.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close engine")
				}
			}()
			eng.Start()

			api, err := httpapi.New(eng, base, httpapi.WithWebhookHandler(func(_ context.Context, lead *webhook.Lead) {
				log.Info().
					Str("c2s_lead_id", lead.ID).
					Str("status", lead.LeadStatus.Alias).
					Msg("crm webhook received")
			}))
			if err != nil {
				return err
			}

			if addr == "" {
				addr = fmt.Sprintf(":%d", cfg.App.Port)
			}
			srv := &http.Server{Addr: addr, Handler: api.Handler(), ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 2)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("http server: %w", err)
				}
			}()

			if topic := cfg.Events.RequestsTopic; topic != "" {
				cons, err := consumer.New(cfg.Events.Brokers, cfg.Events.ConsumerGroup, base)
				if err != nil {
					return err
				}
				defer func() {
					if err := cons.Close(); err != nil {
						log.Error().Err(err).Msg("failed to close kafka consumer")
					}
				}()
				go func() {
					if err := cons.Consume(ctx, []string{topic}, intake.KafkaHandler(eng, cons, base)); err != nil && !errors.Is(err, context.Canceled) {
						errCh <- fmt.Errorf("kafka intake: %w", err)
					}
				}()
				log.Info().Str("topic", topic).Str("group_id", cfg.Events.ConsumerGroup).Msg("kafka intake started")
			}

			log.Info().Str("addr", addr).Str("provider", cfg.C2S.Provider).Msg("leadsync started")

			var runErr error
			select {
			case <-ctx.Done():
				log.Info().Msg("shutdown signal received")
			case runErr = <-errCh:
				log.Error().Err(runErr).Msg("component terminated")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("http shutdown")
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to :APP_PORT)")
	return cmd
}
