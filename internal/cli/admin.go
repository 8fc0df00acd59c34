package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache storage and access statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.manager.Stats()
			if err != nil {
				return err
			}
			return printJSON(struct {
				Storage interface{} `json:"storage"`
				Access  interface{} `json:"access"`
			}{stats, a.manager.AccessStats()})
		},
	}
}

func newCleanupCommand(a *app) *cobra.Command {
	var maxAgeDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete cached emails older than the age threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := a.manager.Cleanup(maxAgeDays)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d emails\n", deleted)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", -1, "age threshold in days (default from config)")
	return cmd
}

func newInvalidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Discard the entire cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.InvalidateAll(); err != nil {
				return err
			}
			fmt.Println("Cache invalidated")
			return nil
		},
	}
}

func newRebuildIndexCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the lookup indexes from stored emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.RebuildIndexes(); err != nil {
				return err
			}
			fmt.Println("Indexes rebuilt")
			return nil
		},
	}
}

func newModifyCommand(a *app) *cobra.Command {
	var addLabels, removeLabels []string

	cmd := &cobra.Command{
		Use:   "modify <id>...",
		Short: "Add or remove labels on emails",
		Long:  "Applies label changes on the remote, then invalidates the local cache so the next fetch reflects them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(addLabels) == 0 && len(removeLabels) == 0 {
				return fmt.Errorf("nothing to do: pass --add and/or --remove")
			}
			results, err := a.service.ModifyLabels(cmd.Context(), args, addLabels, removeLabels)
			if err != nil {
				return err
			}
			failed := 0
			for _, ok := range results {
				if !ok {
					failed++
				}
			}
			fmt.Printf("Modified %d emails (%d failed)\n", len(results)-failed, failed)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&addLabels, "add", nil, "labels to add")
	cmd.Flags().StringSliceVar(&removeLabels, "remove", nil, "labels to remove")
	return cmd
}
