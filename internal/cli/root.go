// Package cli provides the cbt-coach command line: the HTTP server, schema
// migrations and a local chat loop.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"cbt-coach/internal/agent"
	"cbt-coach/internal/config"
	"cbt-coach/internal/conversation"
	"cbt-coach/internal/platform/database"
	"cbt-coach/internal/platform/telegram"
	"cbt-coach/internal/prompts"
	"cbt-coach/internal/report"
)

var (
	cfg    config.Config
	logger *slog.Logger

	databaseURL    string
	databaseDriver string
	promptsFile    string
	jsonLogs       bool
)

var rootCmd = &cobra.Command{
	Use:   "cbt-coach",
	Short: "CBT skills coach with risk screening",
	Long: `cbt-coach runs a guided CBT skills conversation (thought records, behavioural
activation, exposure, coping and psychoeducation) behind a two-tier risk screen.

Settings come from the environment (DATABASE_URL, PRIMARY_LLM, ...);
the flags below override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		flags := cmd.Flags()
		if flags.Changed("database-url") {
			cfg.DatabaseURL = databaseURL
		}
		if flags.Changed("driver") {
			cfg.DatabaseDriver = databaseDriver
		}
		if flags.Changed("prompts") {
			cfg.PromptsFile = promptsFile
		}

		opts := &slog.HandlerOptions{Level: cfg.LogLevel}
		if jsonLogs {
			logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
		} else {
			logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&databaseURL, "database-url", "", "database DSN (overrides DATABASE_URL)")
	pf.StringVar(&databaseDriver, "driver", "", "database driver: postgres or sqlite (overrides DATABASE_DRIVER)")
	pf.StringVar(&promptsFile, "prompts", "", "prompts YAML file (overrides PROMPTS_FILE)")
	pf.BoolVar(&jsonLogs, "json-logs", false, "log as JSON")

	rootCmd.AddCommand(serveCmd, migrateCmd, chatCmd)
}

func openDatabase(ctx context.Context) (*sqlx.DB, error) {
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "connected to database", "driver", cfg.DatabaseDriver)
	return db, nil
}

// app is everything a command needs to run conversations.
type app struct {
	prompts *prompts.Store
	service *conversation.Service
}

func newApp(db *sqlx.DB) (*app, error) {
	store, err := prompts.NewStore(prompts.WithLogger(logger), prompts.WithFile(cfg.PromptsFile))
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	llm, err := agent.New(cfg.Agent())
	if err != nil {
		return nil, err
	}

	repo := conversation.NewRepository(db)
	engine, err := conversation.NewEngine(store, llm,
		conversation.WithLogger(logger),
		conversation.WithGenerator(llm, cfg.GeneratorTimeout),
		conversation.WithClassifierTimeout(cfg.ClassifierTimeout),
		conversation.WithGroundingPolicy(cfg.Grounding()),
		conversation.WithHistoryLimit(cfg.HistoryLimit),
		conversation.WithStrictTransitions(cfg.Strict()),
		conversation.WithProgress(repo),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	var alerter conversation.Alerter
	if cfg.AutoFlagTherapist {
		tg := telegram.NewClient(cfg.TelegramBotToken)
		alerter = report.NewService(tg, cfg.ClinicianChatID,
			report.WithLogger(logger), report.WithFont(cfg.ReportFont))
	} else {
		logger.Info("clinician alerts disabled (AUTO_FLAG_THERAPIST is off)")
	}

	return &app{
		prompts: store,
		service: conversation.NewService(engine, repo, alerter, logger),
	}, nil
}
