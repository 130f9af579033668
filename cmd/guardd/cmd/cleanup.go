package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hashtagemy/guard/internal/config"
	"github.com/hashtagemy/guard/internal/guardconfig"
	"github.com/hashtagemy/guard/internal/store"
)

// cleanupNowCmd runs one retention sweep immediately, outside the
// scheduler's cron cadence — useful for operators who don't want to
// wait for the next scheduled window.
func cleanupNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-now",
		Short: "Run one retention sweep immediately and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanupNow()
		},
	}
}

func runCleanupNow() error {
	bootCfg, err := config.Load(filepath.Join(configDir, "guard.yaml"))
	if err != nil {
		return err
	}

	st, err := store.New(bootCfg.LogRoot)
	if err != nil {
		return err
	}

	runtimeCfg, err := guardconfig.Load(filepath.Join(bootCfg.LogRoot, "config.json"))
	if err != nil {
		return err
	}

	removed, err := st.Cleanup(runtimeCfg.Get().LogRetentionDays)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d file(s) older than %d day(s)\n", removed, runtimeCfg.Get().LogRetentionDays)
	return nil
}
