package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/c2s-leadsync/internal/engine"
	"github.com/example/c2s-leadsync/internal/intake"
	"github.com/example/c2s-leadsync/internal/models"
	"github.com/example/c2s-leadsync/internal/webhook"
)

const commandTimeout = 30 * time.Second

func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	cfg, log, err := bootstrap(os.Stderr)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg, log)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	return fn(ctx, eng)
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check CRM reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				h := eng.Health(ctx)
				if err := printJSON(cmd.OutOrStdout(), h); err != nil {
					return err
				}
				if !h.CRM.Healthy {
					return errors.New("crm unhealthy")
				}
				return nil
			})
		},
	}
}

func sendCmd() *cobra.Command {
	var file, name, phone, email, intent, propertyCode, message string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit a single lead",
		Long:  "Submit a lead read from --file (use - for stdin) or built from flags.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sub engine.Submission
			if file != "" {
				data, err := readInput(cmd, file)
				if err != nil {
					return err
				}
				if sub, err = intake.DecodeSubmission(data); err != nil {
					return fmt.Errorf("decode %s: %w", file, err)
				}
			} else {
				if strings.TrimSpace(name) == "" {
					return fmt.Errorf("--name or --file required")
				}
				sub.Lead = models.LeadInput{
					Name:         name,
					Phone:        phone,
					Email:        email,
					Message:      message,
					Intent:       models.Intent(intent),
					PropertyCode: propertyCode,
					Source:       "cli",
				}
			}

			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				out := eng.Submit(ctx, sub)
				if err := printJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				if !out.Accepted() {
					return errors.New(out.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "lead JSON file")
	cmd.Flags().StringVar(&name, "name", "", "lead name")
	cmd.Flags().StringVar(&phone, "phone", "", "lead phone")
	cmd.Flags().StringVar(&email, "email", "", "lead email")
	cmd.Flags().StringVar(&intent, "intent", "", "buy, sell, rent, evaluate, info or other")
	cmd.Flags().StringVar(&propertyCode, "property-code", "", "property reference code")
	cmd.Flags().StringVar(&message, "message", "", "free text message")
	return cmd
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize a CRM webhook payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			lead, err := webhook.New(stderrLogger()).Normalize(data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lead)
		},
	}
}

func webhookCmd() *cobra.Command {
	hook := &cobra.Command{Use: "webhook", Short: "Manage the CRM webhook subscription"}
	hook.AddCommand(subscribeCmd("subscribe", "Register a webhook URL with C2S", false))
	hook.AddCommand(subscribeCmd("unsubscribe", "Remove a webhook URL from C2S", true))
	return hook
}

func subscribeCmd(use, short string, remove bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <url>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				p := eng.C2S()
				if p == nil {
					return errors.New("webhook subscriptions require CRM_PROVIDER=c2s")
				}
				if err := p.SubscribeWebhook(ctx, args[0], remove); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", use, args[0])
				return nil
			})
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
