package news

import (
	"context"
	"log/slog"
	"sort"
)

// DefaultLimit is used when neither the caller nor the aggregator has a usable limit.
const DefaultLimit = 3

// SeenLoader loads the persisted set of already processed fingerprints.
// Implementations must not fail: unreadable state is an empty set.
type SeenLoader interface {
	LoadSeen(ctx context.Context) Set
}

// Aggregator merges candidates from all sources and keeps only fresh ones.
type Aggregator struct {
	Sources      []Source
	DefaultLimit int

	// CollapseDuplicates drops repeated fingerprints inside one batch,
	// keeping the first occurrence. Off by default: only history is checked.
	CollapseDuplicates bool

	Logger *slog.Logger
}

// Aggregate loads the freshness store and returns at most limit fresh items.
func (a *Aggregator) Aggregate(ctx context.Context, store SeenLoader, limit int) []Item {
	return a.Fresh(ctx, store.LoadSeen(ctx), limit)
}

// Fresh queries every source in order, drops items already in seen,
// sorts newest first and truncates to limit.
func (a *Aggregator) Fresh(ctx context.Context, seen Set, limit int) []Item {
	log := a.logger()
	limit = a.clampLimit(limit)

	var candidates []Item
	for _, src := range a.Sources {
		items, err := src.Fetch(ctx)
		if err != nil {
			log.Error("source failed", "source", src.Name(), "err", err)
			continue
		}
		log.Info("source fetched", "source", src.Name(), "items", len(items))
		candidates = append(candidates, items...)
	}

	batch := make(map[string]struct{})
	fresh := make([]Item, 0, len(candidates))
	for _, it := range candidates {
		it.Fingerprint = it.ComputeFingerprint()
		if seen.Contains(it.Fingerprint) {
			continue
		}
		if a.CollapseDuplicates {
			if _, dup := batch[it.Fingerprint]; dup {
				log.Debug("duplicate inside batch", "title", it.Title, "fingerprint", it.Fingerprint)
				continue
			}
			batch[it.Fingerprint] = struct{}{}
		}
		fresh = append(fresh, it)
	}
	log.Info("fresh items detected", "candidates", len(candidates), "fresh", len(fresh))

	SortByPublishedDesc(fresh)

	if len(fresh) > limit {
		fresh = fresh[:limit]
	}
	return fresh
}

// SortByPublishedDesc orders items by their PublishedAt string, newest first.
// Comparison is lexicographic; items without a timestamp end up last.
// Ties keep aggregation order.
func SortByPublishedDesc(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt > items[j].PublishedAt
	})
}

func (a *Aggregator) clampLimit(limit int) int {
	if limit > 0 {
		return limit
	}
	if a.DefaultLimit > 0 {
		a.logger().Warn("non-positive limit, using default", "limit", limit, "default", a.DefaultLimit)
		return a.DefaultLimit
	}
	return DefaultLimit
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
