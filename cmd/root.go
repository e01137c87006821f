package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/undergis/spatialid/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "spatialid",
	Short: "3D spatial identifier engine",
	Long:  "Converts solid and surface geometry into minimal sets of hierarchical 3D tile identifiers, and decodes identifiers back into geographic extents.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
