package vcm

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// PoolStats is a snapshot of a recycle pool's bookkeeping. Available and
// InUse always sum to Created while the pool is alive.
type PoolStats struct {
	// Available is the number of handles ready to be handed out
	Available int
	// InUse is the number of handles currently held by callers
	InUse int
	// Created is the number of native objects this pool has ever created
	Created int
}

func (s *PoolStats) printJSON(json *jwriter.ObjectState) {
	json.Name("Available").Int(s.Available)
	json.Name("InUse").Int(s.InUse)
	json.Name("Created").Int(s.Created)
}

// CacheStats is a snapshot of DescriptorCache activity.
type CacheStats struct {
	Entries int
	Hits    int
	Misses  int
	// Evicted counts records dropped by capacity or age, not destroyed sets-
	// the cache never owns the handles it stores.
	Evicted int
}

func (s *CacheStats) printJSON(json *jwriter.ObjectState) {
	json.Name("Entries").Int(s.Entries)
	json.Name("Hits").Int(s.Hits)
	json.Name("Misses").Int(s.Misses)
	json.Name("Evicted").Int(s.Evicted)
}

// TransferStats is a snapshot of TransferManager activity.
type TransferStats struct {
	PendingBatches   int
	CompletedBatches int
	SubmittedTotal   int
}

func (s *TransferStats) printJSON(json *jwriter.ObjectState) {
	json.Name("PendingBatches").Int(s.PendingBatches)
	json.Name("CompletedBatches").Int(s.CompletedBatches)
	json.Name("SubmittedTotal").Int(s.SubmittedTotal)
}
