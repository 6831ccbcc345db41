package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/c2s-leadsync/internal/config"
	"github.com/example/c2s-leadsync/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "leadsync",
	Short: "C2S lead ingestion and sync engine",
	Long: `leadsync forwards real-estate leads captured by the site to the C2S CRM.

Leads are deduplicated, enriched with property data and tagged before they
are sent. Leads that fail while the CRM is unavailable are retried by an
in-process queue. Configuration is read from the environment and an
optional .env file.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(webhookCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the process logger. One-shot
// commands log to stderr so stdout stays machine readable.
func bootstrap(logTo ...io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("config load: %w", err)
	}
	base, err := logger.New(cfg.App.Env, cfg.App.LogLevel, logTo...)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("logger init: %w", err)
	}
	return cfg, *base, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stderrLogger serves commands that run without loading configuration.
func stderrLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
