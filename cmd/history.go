package cmd

import (
	"fmt"
	"time"

	"clipsync/internal/history"
	"clipsync/internal/util"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	var pick bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the reconciled clipboard history",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := openApp()
			if err != nil {
				util.Default.Printf("❌ %v\n", err)
				return
			}
			defer a.Close()

			items, err := a.resolver.Recent(limit)
			if err != nil {
				util.Default.Printf("❌ Failed to load history: %v\n", err)
				return
			}
			if len(items) == 0 {
				util.Default.Println("History is empty")
				return
			}

			if pick {
				pickAndCopy(a, items)
				return
			}
			for _, it := range items {
				util.Default.Printf("%s\n", formatItem(it))
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of items to show")
	cmd.Flags().BoolVar(&pick, "pick", false, "interactively pick an item and copy it to the clipboard")
	return cmd
}

func formatItem(it *history.HistoryItem) string {
	age := humanize.Time(time.UnixMilli(it.LastModified))
	switch it.Kind {
	case history.KindText:
		return fmt.Sprintf("[%s] %-6s %s  %s", age, it.Provenance, it.Kind, it.DisplayContent)
	default:
		return fmt.Sprintf("[%s] %-6s %s  %s (%s)", age, it.Provenance, it.Kind,
			it.AuxFileName, humanize.Bytes(uint64(it.AuxFileSize)))
	}
}

func pickAndCopy(a *app, items []*history.HistoryItem) {
	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = formatItem(it)
	}

	util.Default.Suspend()
	prompt := promptui.Select{
		Label: "Copy to clipboard",
		Items: labels,
		Size:  15,
	}
	idx, _, err := prompt.Run()
	util.Default.Resume()
	if err != nil {
		util.Default.Printf("⏹ Cancelled: %v\n", err)
		return
	}

	chosen := items[idx]
	if chosen.Kind != history.KindText {
		util.Default.Printf("📦 %s payload is cached at %s\n", chosen.Kind, chosen.CacheFilePath)
		return
	}
	if err := a.clip.Write(chosen.Content); err != nil {
		util.Default.Printf("❌ Failed to write clipboard: %v\n", err)
		return
	}
	util.Default.Printf("✅ Copied: %s\n", chosen.DisplayContent)
}
