package clipboard

import (
	"context"
	"log"
	"time"

	"clipsync/internal/events"
	"clipsync/internal/fingerprint"
)

// Watcher polls the platform clipboard and publishes
// events.EventClipboardChanged on the global bus whenever the content
// changes between ticks. Change detection runs on a cheap xxhash of the
// text, so idle ticks cost one Read and one hash.
type Watcher struct {
	clip     Clipboard
	interval time.Duration
}

func NewWatcher(clip Clipboard, interval time.Duration) *Watcher {
	return &Watcher{clip: clip, interval: interval}
}

// Run polls until ctx is cancelled. The content present when the watcher
// starts is the baseline, not an event: only subsequent changes fire.
func (w *Watcher) Run(ctx context.Context) {
	var baseline uint64
	if initial, err := w.clip.Read(); err == nil {
		baseline = fingerprint.Quick([]byte(initial))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			content, err := w.clip.Read()
			if err != nil {
				log.Printf("clipboard: read failed: %v", err)
				continue
			}
			h := fingerprint.Quick([]byte(content))
			if h == baseline {
				continue
			}
			baseline = h
			if content == "" {
				continue
			}
			events.GlobalBus.Publish(events.EventClipboardChanged, content)
		}
	}
}
