// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the report-engine CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/logging"
	"github.com/pdiddy/report-engine/internal/secrets"
	"github.com/pdiddy/report-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	logger        *zap.Logger = zap.NewNop()
	metricsServer *http.Server
)

// rootCmd is the base command for the report-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "report-engine",
	Short: "Athena queries, LLM-written report sections and Word documents",
	Long: `report-engine pulls data out of Athena, asks a chat-completion model to
write report sections, insights and survey categorizations from it, and lays
the results out in Word documents.

Token usage of every model call is appended to a CSV log and recorded in a
local SQLite database; see the usage command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			level = "debug"
		}
		l, err := logging.New(level, verbose)
		if err != nil {
			return err
		}
		logger = l

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			startMetrics(addr)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}
		_ = logger.Sync()
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./report-engine.yaml or ~/.config/report-engine/report-engine.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.BoolP("verbose", "v", false, "human-readable debug logging")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	pf.String("secret-id", "", "AWS Secrets Manager secret holding API keys as JSON")
}

func initConfig() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("report-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "report-engine"))
		}
	}

	viper.SetEnvPrefix("REPORT_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setConfigDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setConfigDefaults registers every config key so environment variables
// such as REPORT_ENGINE_LLM_MODEL reach Unmarshal.
func setConfigDefaults() {
	d := types.Config{}.Defaults()
	defaults := map[string]any{
		"athena.region":               d.Athena.Region,
		"athena.database":             d.Athena.Database,
		"athena.workgroup":            d.Athena.WorkGroup,
		"athena.results_bucket":       d.Athena.ResultsBucket,
		"athena.temp_prefix":          d.Athena.TempPrefix,
		"athena.direct_prefix":        d.Athena.DirectPrefix,
		"athena.ctas_poll_interval":   d.Athena.CTASPollInterval,
		"athena.direct_poll_interval": d.Athena.DirectPollInterval,
		"athena.auto_threshold_bytes": d.Athena.AutoThresholdBytes,
		"athena.export_bucket":        d.Athena.ExportBucket,
		"athena.export_prefix":        d.Athena.ExportPrefix,
		"llm.base_url":                d.LLM.BaseURL,
		"llm.api_key":                 "",
		"llm.model":                   d.LLM.Model,
		"llm.max_tokens":              d.LLM.MaxTokens,
		"llm.temperature":             *d.LLM.Temperature,
		"llm.timeout":                 d.LLM.Timeout,
		"llm.max_retries":             5,
		"report.language":             d.Report.Language,
		"report.section_tokens":       d.Report.SectionTokens,
		"report.insight_tokens":       d.Report.InsightTokens,
		"categorize.batch_tokens":     d.Categorize.BatchTokens,
		"categorize.workers":          d.Categorize.Workers,
		"categorize.max_retries":      2,
		"categorize.max_tokens":       d.Categorize.MaxTokens,
		"categorize.fallback":         d.Categorize.Fallback,
		"categorize.token_method":     d.Categorize.TokenMethod,
		"usage.dir":                   d.Usage.Dir,
		"usage.csv_file":              d.Usage.CSVFile,
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// loadConfig decodes the merged file, env and default settings.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	return cfg.Defaults(), nil
}

// resolveSecret looks key up in the environment, .secrets/ and, when
// --secret-id is set, AWS Secrets Manager.
func resolveSecret(cmd *cobra.Command, cfg types.Config, key string) (string, error) {
	ctx := cmd.Context()
	r := &secrets.Resolver{Dir: ".secrets/", Logger: logger}
	if id, _ := cmd.Flags().GetString("secret-id"); id != "" {
		p, err := secrets.NewAWSProvider(ctx, cfg.Athena.Region)
		if err != nil {
			return "", err
		}
		r.SecretID, r.AWS = id, p
	}
	v, source, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	logger.Debug("secret resolved", zap.String("key", key), zap.String("source", source))
	return v, nil
}

func startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
