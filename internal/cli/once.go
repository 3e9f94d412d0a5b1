package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osintlab/dronewatch/internal/collect"
	"github.com/osintlab/dronewatch/internal/logging"
	"github.com/osintlab/dronewatch/internal/store"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single collection cycle and print the counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logging.InitStderr()

		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		pipe := buildPipeline(cfg, st, nil)
		collector := collect.NewCollector(cfg.Feeds)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		candidates := collector.CollectAll(ctx)
		stats, err := pipe.Run(ctx, candidates)
		if err != nil {
			return err
		}

		fmt.Printf("candidates: %d\n", len(candidates))
		fmt.Printf("%s\n", stats)
		return nil
	},
}
