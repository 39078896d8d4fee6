package cmd

import (
	"context"
	"log"
	"time"

	"clipsync/internal/clipboard"
	"clipsync/internal/events"
	"clipsync/internal/syncer"
	"clipsync/internal/util"

	"github.com/spf13/cobra"
)

// How often the clipboard is polled between sync ticks. Cheap: one read
// plus one xxhash per poll.
const pollInterval = 500 * time.Millisecond

const sweepInterval = time.Hour

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the clipboard and sync continuously",
	Long: `Runs the foreground auto-sync loop: a clipboard watcher captures local
changes as they happen, and an interval timer runs the upload-then-download
cycle against the remote store. Stop with Ctrl-C.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			util.Default.Printf("❌ %v\n", err)
			return
		}
		defer a.Close()

		if !a.cfg.AutoSync {
			util.Default.Println("⚠️  auto_sync is disabled in clipsync.yaml; watching anyway because you asked")
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Local clipboard changes are captured immediately and pushed by
		// running a full cycle, so the other devices see them fast.
		onChange := func(content string) {
			if _, err := a.orch.CaptureText(content); err != nil {
				log.Printf("watch: capture failed: %v", err)
				return
			}
			if result, err := a.orch.RunSyncCycle(ctx); result == syncer.ResultFailed {
				log.Printf("watch: cycle after clipboard change failed: %v", err)
			}
		}
		if err := events.GlobalBus.Subscribe(events.EventClipboardChanged, onChange); err != nil {
			util.Default.Printf("❌ Failed to subscribe to clipboard events: %v\n", err)
			return
		}
		defer events.GlobalBus.Unsubscribe(events.EventClipboardChanged, onChange)

		watcher := clipboard.NewWatcher(a.clip, pollInterval)
		go watcher.Run(ctx)

		interval := time.Duration(a.cfg.SyncIntervalMs) * time.Millisecond
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sweeper := time.NewTicker(sweepInterval)
		defer sweeper.Stop()

		util.Default.Printf("👀 Watching clipboard, syncing every %s (Ctrl-C to stop)\n", interval)

		for {
			select {
			case <-ctx.Done():
				events.GlobalBus.Publish(events.EventShutdownRequested)
				util.Default.Println("⏹ Stopped")
				return
			case <-ticker.C:
				result, err := a.orch.RunSyncCycle(ctx)
				switch result {
				case syncer.ResultMerged:
					util.Default.Println("📥 Merged new content from the remote store")
				case syncer.ResultFailed:
					log.Printf("watch: sync cycle failed: %v", err)
				}
			case <-sweeper.C:
				if err := a.orch.Sweep(time.Now()); err != nil {
					log.Printf("watch: cache sweep failed: %v", err)
				}
			}
		}
	},
}
