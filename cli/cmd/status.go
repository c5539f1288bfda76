package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bundle and store status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("User:              %s\n", config.UserID)
		fmt.Printf("Store:             %s\n", backend.GetType())
		fmt.Printf("Memory protection: %s\n", manager.MemoryProtection())

		bundle, err := loadBundle()
		if err != nil {
			fmt.Println("Bundle:            not initialized")
			return nil
		}

		fmt.Printf("Bundle version:    %d\n", bundle.Version)
		fmt.Printf("Created:           %s\n", bundle.CreatedAt.Format(time.RFC3339))
		if bundle.RotatedAt != nil {
			fmt.Printf("Last rotated:      %s\n", bundle.RotatedAt.Format(time.RFC3339))
		}
		if bundle.Recovery != nil {
			fmt.Printf("Recovery key:      configured (%s)\n", bundle.Recovery.CreatedAt.Format(time.RFC3339))
		} else {
			fmt.Println("Recovery key:      not configured")
		}

		keys, err := backend.List()
		if err == nil {
			count := 0
			for _, key := range keys {
				if key != bundleKey {
					count++
				}
			}
			fmt.Printf("Stored values:     %d\n", count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
