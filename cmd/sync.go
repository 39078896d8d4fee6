package cmd

import (
	"clipsync/internal/syncer"
	"clipsync/internal/util"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one upload-then-download sync cycle",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			util.Default.Printf("❌ %v\n", err)
			return
		}
		defer a.Close()

		// Capture whatever is on the clipboard right now so the upload
		// phase has the freshest local item.
		if item, err := a.orch.ObserveClipboard(); err != nil {
			util.Default.Printf("⚠️  Could not read the clipboard: %v\n", err)
		} else if item != nil && !item.Synced {
			util.Default.Printf("📋 Captured clipboard content (%s)\n", item.DisplayContent)
		}

		result, err := a.orch.RunSyncCycle(cmd.Context())
		switch result {
		case syncer.ResultMerged:
			util.Default.Println("✅ Sync complete: new content merged from the remote store")
		case syncer.ResultNoChange:
			util.Default.Println("✅ Sync complete: nothing new on either side")
		case syncer.ResultFailed:
			util.Default.Printf("❌ Sync failed: %v\n", err)
		}
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload unsynced items without fetching",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			util.Default.Printf("❌ %v\n", err)
			return
		}
		defer a.Close()

		if _, err := a.orch.ObserveClipboard(); err != nil {
			util.Default.Printf("⚠️  Could not read the clipboard: %v\n", err)
		}

		uploaded, failed := a.orch.PushUnsynced(cmd.Context())
		util.Default.Printf("📤 Uploaded %d item(s), %d failed\n", uploaded, failed)
	},
}
