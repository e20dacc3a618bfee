package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/chainlens/internal/store"
	"github.com/chainlens/internal/triangle"
)

var (
	scoreTenant string
	scoreWindow int
	scoreSave   bool
)

// scoreCmd runs one analysis and prints it
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the supply chain triangle of a tenant and print it as JSON",
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreTenant, "tenant", "t", "", "Tenant id")
	scoreCmd.Flags().IntVarP(&scoreWindow, "window", "w", triangle.DefaultWindowDays, "Trailing window in days")
	scoreCmd.Flags().BoolVar(&scoreSave, "save", false, "Persist the computed score")
	_ = scoreCmd.MarkFlagRequired("tenant")
}

func runScore(cmd *cobra.Command, args []string) error {
	if scoreWindow <= 0 {
		return errors.New("window must be positive")
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.Open(store.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	engineCfg := cfg.Triangle
	engineCfg.CacheEnabled = false
	engineCfg.PersistScores = scoreSave

	engine := triangle.NewEngine(engineCfg, st, st, triangle.WithLogger(logger.Named("triangle")))
	defer engine.Close()

	analysis, err := engine.Analyze(cmd.Context(), scoreTenant, scoreWindow)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(analysis)
}
