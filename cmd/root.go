package cmd

import (
	"context"
	"fmt"
	"os"

	"clipsync/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clipsync",
	Short: "Shared clipboard synchronizer",
	Long: `clipsync keeps this device's clipboard synchronized with a shared remote
store and maintains a deduplicated local history of text, image and file
items. Point endpoint_url at a store speaking the SyncClipboard.json wire
protocol and run 'clipsync watch' to sync continuously.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !config.ConfigExists() {
			fmt.Println("Config file not found")
			fmt.Println("USAGE:")
			fmt.Println("Make sure you have the config file by running.")
			fmt.Println("clipsync init")
			fmt.Println("------------------------------")
			return
		}
		cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(watchCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// ExecuteContext allows running the root command with a supplied context for cancellation.
func ExecuteContext(ctx context.Context) error {
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}
