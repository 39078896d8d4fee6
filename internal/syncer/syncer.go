package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"clipsync/internal/clipboard"
	"clipsync/internal/events"
	"clipsync/internal/evict"
	"clipsync/internal/history"
	"clipsync/internal/remote"
	"clipsync/internal/resolver"
)

// Result reports how a sync cycle ended.
type Result string

const (
	// ResultMerged: the fetch produced content that differed from the
	// device clipboard and was written back to it.
	ResultMerged Result = "Merged"
	// ResultNoChange: nothing new on either side.
	ResultNoChange Result = "NoChange"
	// ResultFailed: the cycle aborted; store mutations up to the failure
	// point remain committed.
	ResultFailed Result = "Failed"
)

// RemoteClient is the slice of the remote sync client the orchestrator
// drives. *remote.Client satisfies it; tests substitute fakes.
type RemoteClient interface {
	Fetch(ctx context.Context) (*remote.FetchResult, error)
	Upload(ctx context.Context, item *history.HistoryItem) error
}

// Orchestrator owns the serialized upload-then-download cycle. One mutex
// guards the whole cycle and every other multi-row mutation (capture,
// eviction, reconciliation): at most one runs at a time, and concurrent
// callers block until the lock frees rather than being rejected.
type Orchestrator struct {
	mu sync.Mutex

	store      *history.Store
	resolver   *resolver.Resolver
	client     RemoteClient
	clip       clipboard.Clipboard
	evictor    *evict.Manager
	deviceName string
}

func New(store *history.Store, res *resolver.Resolver, client RemoteClient,
	clip clipboard.Clipboard, evictor *evict.Manager, deviceName string) *Orchestrator {
	return &Orchestrator{
		store:      store,
		resolver:   res,
		client:     client,
		clip:       clip,
		evictor:    evictor,
		deviceName: deviceName,
	}
}

// RunSyncCycle uploads every unsynced item, then fetches the remote item
// and commits it through the resolver. A single item's upload failure is
// logged and skipped; a fetch failure terminates the cycle as Failed.
func (o *Orchestrator) RunSyncCycle(ctx context.Context) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	events.GlobalBus.Publish(events.EventSyncStarted)

	o.drainUploads(ctx)

	res, err := o.client.Fetch(ctx)
	if err != nil {
		events.GlobalBus.Publish(events.EventSyncFailed, err)
		return ResultFailed, fmt.Errorf("fetch failed: %w", err)
	}

	if res.NoChange {
		if err := o.evictor.Enforce(); err != nil {
			log.Printf("syncer: eviction after no-change cycle: %v", err)
		}
		events.GlobalBus.Publish(events.EventSyncNoChange)
		return ResultNoChange, nil
	}

	if err := o.store.Put(res.Item); err != nil {
		events.GlobalBus.Publish(events.EventSyncFailed, err)
		return ResultFailed, err
	}
	// Commit runs through the resolver so a pre-existing local twin
	// collapses into one Merged row before anything is surfaced.
	if _, err := o.resolver.Resolve(); err != nil {
		events.GlobalBus.Publish(events.EventSyncFailed, err)
		return ResultFailed, err
	}
	if err := o.evictor.Enforce(); err != nil {
		log.Printf("syncer: eviction after commit: %v", err)
	}
	events.GlobalBus.Publish(events.EventItemFetched, res.Item)

	// Text payloads land back on the platform clipboard when they differ
	// from what the device currently holds. Binary payloads live in the
	// cache directory; the text capability cannot carry them.
	if res.Item.Kind == history.KindText {
		current, err := o.clip.Read()
		if err != nil {
			log.Printf("syncer: clipboard read after fetch: %v", err)
		} else if current == res.Item.Content {
			events.GlobalBus.Publish(events.EventSyncNoChange)
			return ResultNoChange, nil
		}
		if err := o.clip.Write(res.Item.Content); err != nil {
			log.Printf("syncer: clipboard write failed: %v", err)
		}
	}

	events.GlobalBus.Publish(events.EventSyncMerged, res.Item)
	return ResultMerged, nil
}

// Sweep runs the cache sweep under the cycle lock. A download that has
// landed in the cache but whose row is not committed yet looks like an
// orphan to the sweeper, so the sweep must never overlap a cycle.
func (o *Orchestrator) Sweep(now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.evictor.Sweep(now)
}

// PushUnsynced drains the unsynced queue without running a fetch. It
// returns how many items uploaded and how many failed.
func (o *Orchestrator) PushUnsynced(ctx context.Context) (uploaded, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drainUploads(ctx)
}

func (o *Orchestrator) drainUploads(ctx context.Context) (uploaded, failed int) {
	pending, err := o.store.Unsynced()
	if err != nil {
		log.Printf("syncer: failed to load unsynced queue: %v", err)
		return 0, 0
	}
	for _, item := range pending {
		if err := o.client.Upload(ctx, item); err != nil {
			failed++
			log.Printf("syncer: upload of %s failed: %v", item.ID, err)
			continue
		}
		if err := o.store.MarkSynced(item.ID, history.NowMillis()); err != nil {
			log.Printf("syncer: failed to mark %s synced: %v", item.ID, err)
		}
		uploaded++
		events.GlobalBus.Publish(events.EventItemUploaded, item)
	}
	return uploaded, failed
}

// ObserveClipboard captures the device's present clipboard text into the
// store as a Local unsynced item. An empty clipboard captures nothing.
// Duplicate captures are allowed here; the resolver collapses them on the
// next read, per the store's pre-reconciliation contract.
func (o *Orchestrator) ObserveClipboard() (*history.HistoryItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	content, err := o.clip.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read clipboard: %v", err)
	}
	return o.captureLocked(content)
}

// CaptureText stores text that arrived by some path other than the
// platform clipboard poll (the watch loop hands event payloads here).
func (o *Orchestrator) CaptureText(content string) (*history.HistoryItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.captureLocked(content)
}

func (o *Orchestrator) captureLocked(content string) (*history.HistoryItem, error) {
	if content == "" {
		return nil, nil
	}
	item := history.NewTextItem(content, o.deviceName)

	// Same content captured again just refreshes recency instead of
	// piling up identical Local rows.
	twins, err := o.store.ByFingerprint(item.Fingerprint)
	if err == nil && len(twins) > 0 {
		newest := twins[0]
		newest.LastModified = item.LastModified
		if err := o.store.Put(newest); err != nil {
			return nil, err
		}
		return newest, nil
	}

	if err := o.store.Put(item); err != nil {
		return nil, err
	}
	if err := o.evictor.Enforce(); err != nil {
		log.Printf("syncer: eviction after capture: %v", err)
	}
	return item, nil
}
