package cmd

import (
	"clipsync/internal/config"
	"clipsync/internal/util"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize config file",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := config.WriteDefaultConfig()
		if err != nil {
			util.Default.Printf("❌ %v\n", err)
			return
		}
		util.Default.Printf("✅ Wrote default config to %s\n", path)
		util.Default.Println("💡 Edit endpoint_url (and credentials, if any), then run 'clipsync status' to verify the connection")
	},
}
