package resolver

import (
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"clipsync/internal/history"
)

// Resolver collapses duplicate history rows sharing a fingerprint into one
// canonical item per fingerprint. It runs on every consumer-facing read
// and is deliberately not read-only: its deletions and canonical inserts
// are part of the contract. Running it twice over the same state is a
// no-op the second time.
type Resolver struct {
	store *history.Store
}

func New(store *history.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve reconciles the whole store and returns the canonical set sorted
// by LastModified descending.
//
// Per fingerprint group:
//  1. an already-Merged member is canonical; siblings are deleted
//  2. a Local/Remote pair merges: the greater-LastModified member is the
//     structural base, cloned as Merged+synced with the max timestamp
//  3. a same-provenance group keeps its newest member
//
// Known limitation: rule 2 trusts LastModified, so skewed device clocks
// can pick a stale base. Accepted rather than introducing vector clocks.
func (r *Resolver) Resolve() ([]*history.HistoryItem, error) {
	all, err := r.store.All()
	if err != nil {
		return nil, fmt.Errorf("failed to load history for reconciliation: %v", err)
	}

	groups := map[string][]*history.HistoryItem{}
	order := []string{}
	for _, it := range all {
		if _, seen := groups[it.Fingerprint]; !seen {
			order = append(order, it.Fingerprint)
		}
		groups[it.Fingerprint] = append(groups[it.Fingerprint], it)
	}

	var out []*history.HistoryItem
	for _, fp := range order {
		group := groups[fp]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		canonical, err := r.collapse(group)
		if err != nil {
			return nil, err
		}
		out = append(out, canonical)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified > out[j].LastModified
	})
	return out, nil
}

// Recent is Resolve truncated to limit entries.
func (r *Resolver) Recent(limit int) ([]*history.HistoryItem, error) {
	out, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Resolver) collapse(group []*history.HistoryItem) (*history.HistoryItem, error) {
	// Rule 1: an existing Merged row wins outright.
	if m := newestOf(group, history.ProvenanceMerged); m != nil {
		if err := r.deleteOthers(group, m.ID); err != nil {
			return nil, err
		}
		return m, nil
	}

	local := newestOf(group, history.ProvenanceLocal)
	remote := newestOf(group, history.ProvenanceRemote)

	// Rule 2: both origins present, collapse into a fresh Merged row.
	if local != nil && remote != nil {
		base := local
		if remote.LastModified > local.LastModified {
			base = remote
		}
		merged := *base
		merged.ID = uuid.NewString()
		merged.Provenance = history.ProvenanceMerged
		merged.Synced = true
		merged.LastModified = maxInt64(local.LastModified, remote.LastModified)
		if err := r.store.Put(&merged); err != nil {
			return nil, fmt.Errorf("failed to persist merged item: %v", err)
		}
		if err := r.deleteOthers(group, merged.ID); err != nil {
			return nil, err
		}
		return &merged, nil
	}

	// Rule 3: same provenance throughout, newest survives.
	keep := group[0]
	for _, it := range group[1:] {
		if it.LastModified > keep.LastModified {
			keep = it
		}
	}
	if err := r.deleteOthers(group, keep.ID); err != nil {
		return nil, err
	}
	return keep, nil
}

func (r *Resolver) deleteOthers(group []*history.HistoryItem, keepID string) error {
	for _, it := range group {
		if it.ID == keepID {
			continue
		}
		if err := r.store.Delete(it.ID); err != nil {
			// A failed sibling delete leaves a duplicate-but-valid row
			// for the next resolve pass; it never corrupts the survivor.
			log.Printf("resolver: failed to delete duplicate %s: %v", it.ID, err)
		}
	}
	return nil
}

func newestOf(group []*history.HistoryItem, prov history.Provenance) *history.HistoryItem {
	var best *history.HistoryItem
	for _, it := range group {
		if it.Provenance != prov {
			continue
		}
		if best == nil || it.LastModified > best.LastModified {
			best = it
		}
	}
	return best
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
