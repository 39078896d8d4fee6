package cmd

import (
	"os"
	"path/filepath"

	"clipsync/internal/remote"
	"clipsync/internal/util"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the remote store and show local history stats",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			util.Default.Printf("❌ %v\n", err)
			return
		}
		defer a.Close()

		util.Default.Printf("Endpoint: %s\n", a.cfg.EndpointURL)
		// Bare reachability first, so a down host reads as "unreachable"
		// rather than as a protocol problem.
		if err := a.client.Ping(cmd.Context()); err != nil {
			printProbeFailure(err)
		} else if err := a.client.TestConnection(cmd.Context()); err != nil {
			printProbeFailure(err)
		} else {
			util.Default.Println("✅ Remote store reachable and speaking the expected protocol")
		}

		count, err := a.store.Count()
		if err == nil {
			util.Default.Printf("History items: %d (retention limit %d)\n", count, a.cfg.RetentionCount)
		}
		unsynced, err := a.store.Unsynced()
		if err == nil {
			util.Default.Printf("Pending upload: %d\n", len(unsynced))
		}
		util.Default.Printf("Cache directory: %s (%s)\n", a.cfg.CacheDir(), humanize.Bytes(dirSize(a.cfg.CacheDir())))
	},
}

func printProbeFailure(err error) {
	switch remote.KindOf(err) {
	case remote.KindAuthenticationFailed:
		util.Default.Println("❌ Authentication failed: check username/password in clipsync.yaml")
	case remote.KindEndpointNotFound:
		util.Default.Println("❌ Endpoint not found: endpoint_url points at a server, but not at a clipboard store path")
	case remote.KindRemoteServerError:
		util.Default.Println("❌ Remote server error: the store is up but failing, try again later")
	case remote.KindMalformedResponse:
		util.Default.Println("❌ Wrong server type: the endpoint answered, but not with the clipboard wire format")
	case remote.KindTlsUntrusted:
		util.Default.Println("❌ TLS certificate untrusted: set trust_invalid_certs: true if the store uses a self-signed certificate")
	default:
		util.Default.Printf("❌ Unreachable: %v\n", err)
	}
}

func dirSize(dir string) uint64 {
	var total uint64
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := os.Stat(filepath.Join(dir, e.Name())); err == nil {
			total += uint64(info.Size())
		}
	}
	return total
}
