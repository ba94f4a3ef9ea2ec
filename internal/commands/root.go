// Package commands implements the nutrilog command line.
package commands

import (
	"context"
	"fmt"

	"github.com/aixgo-dev/nutrilog/pkg/config"
	"github.com/aixgo-dev/nutrilog/pkg/estimator"
	"github.com/aixgo-dev/nutrilog/pkg/logging"
	"github.com/aixgo-dev/nutrilog/pkg/records"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "nutrilog",
		Short: "Nutrilog - diet and exercise logging chat bot",
		Long: `Nutrilog walks chat users through logging a meal or a workout.
Meals are estimated from photos and notes by a generative model and
stored with their nutrition facts; workouts are stored as described.

Commands:
  serve      Run the webhook server
  cleanup    Archive records past the retention window once
  chat       Talk to the bot from the terminal

Config: --config file (YAML), .env and environment variables`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "Override the log level")

	root.AddCommand(newServeCmd(version))
	root.AddCommand(newCleanupCmd())
	root.AddCommand(newChatCmd())
	return root
}

// setup loads configuration and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	log.SetOutput(cmd.ErrOrStderr())
	return cfg, log, nil
}

func openStore(ctx context.Context, cfg *config.Config) (records.Store, error) {
	store, err := records.Open(ctx, records.Config{
		Backend: cfg.Store.Backend,
		Firestore: records.FirestoreConfig{
			ProjectID:       cfg.Store.GCPProject,
			CredentialsFile: cfg.Store.GCPCredentials,
		},
		Redis: records.RedisConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return records.NewInstrumented(store), nil
}

func newEstimator(ctx context.Context, cfg *config.Config) (estimator.Estimator, error) {
	est, err := estimator.New(ctx, estimator.Config{
		Provider: cfg.Estimator.Provider,
		APIKey:   cfg.Estimator.APIKey(),
		Model:    cfg.Estimator.Model,
		BaseURL:  cfg.Estimator.BaseURL,
		Timeout:  cfg.Estimator.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create estimator: %w", err)
	}
	return estimator.NewInstrumented(est), nil
}

func collections(cfg *config.Config) records.Collections {
	return records.Collections{
		Diet:     cfg.Store.DietCollection,
		Exercise: cfg.Store.ExerciseCollection,
	}
}
