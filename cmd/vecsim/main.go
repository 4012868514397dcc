// Command vecsim runs the vector similarity search server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsim"
	"github.com/hupe1980/vecsim/server"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "vecsim",
		Short:        "Vector similarity search server",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHashKeyCmd())
	rootCmd.AddCommand(newStatusCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cfg := DefaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.load(configPath, cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, &cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cfg.bindFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg *Config, out io.Writer) error {
	logger := cfg.Log.Logger()

	opts, err := dbOptions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	db, err := vecsim.Open(ctx, cfg.Dimensions, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("failed to close database", "error", cerr)
		}
	}()

	printBanner(out, cfg, db)

	srv := server.New(db, func(o *server.Options) {
		o.Logger = logger
		o.APIKeyHash = cfg.APIKeyHash
		o.AutoSave = cfg.AutoSave
	})
	return srv.Run(ctx, cfg.Addr())
}

func printBanner(out io.Writer, cfg *Config, db *vecsim.DB) {
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)

	algorithm, _ := db.Algorithm()
	_, _ = cyan.Fprintf(out, "vecsim %s\n", version)
	_, _ = gray.Fprintf(out, "  listening   %s\n", cfg.Addr())
	_, _ = gray.Fprintf(out, "  dimension   %d\n", db.Dimension())
	_, _ = gray.Fprintf(out, "  metric      %s\n", db.Metric())
	_, _ = gray.Fprintf(out, "  algorithm   %s\n", algorithm)
	_, _ = gray.Fprintf(out, "  records     %d\n", db.Count())
	_, _ = gray.Fprintf(out, "  storage     %s\n", cfg.Storage.Backend)
	if cfg.Journal.Enabled {
		_, _ = gray.Fprintf(out, "  journal     %s (%s)\n", cfg.Journal.Backend, cfg.Journal.Durability)
	}
	if cfg.APIKeyHash != "" {
		_, _ = gray.Fprintln(out, "  auth        bearer")
	}
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the bcrypt hash of an API key for api_key_hash",
		Long:  "Print the bcrypt hash of an API key. Without an argument the key is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				key = strings.TrimRight(line, "\r\n")
			}
			if key == "" {
				return errors.New("empty API key")
			}

			hash, err := server.HashAPIKey(key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func newStatusCmd() *cobra.Command {
	var (
		addr   string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health and statistics of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return status(ctx, cmd.OutOrStdout(), strings.TrimSuffix(addr, "/"), apiKey)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("VECSIM_API_KEY"), "API key sent as bearer token")
	return cmd
}

func status(ctx context.Context, out io.Writer, base, apiKey string) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := getJSON(ctx, base+"/health", "", &health); err != nil {
		_, _ = red.Fprintf(out, "✗ %s unreachable: %v\n", base, err)
		return err
	}
	_, _ = green.Fprintf(out, "✓ %s %s (version %s)\n", base, health.Status, health.Version)

	var stats map[string]any
	if err := getJSON(ctx, base+"/statistics", apiKey, &stats); err != nil {
		_, _ = red.Fprintf(out, "✗ statistics: %v\n", err)
		return err
	}
	for _, field := range []string{"vector_count", "dimensions", "metric", "algorithm", "simd_enabled", "index_rebuilds"} {
		if v, ok := stats[field]; ok {
			_, _ = gray.Fprintf(out, "  %-16s %v\n", field, v)
		}
	}
	return nil
}

func getJSON(ctx context.Context, url, apiKey string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
