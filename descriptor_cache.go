package vcm

import (
	"encoding/binary"
	"hash/fnv"
	"log/slog"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/vcm/internal/utils"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// BindingDescription is one binding slot in a descriptor set signature.
// ContentID identifies the resource actually bound (a texture or buffer id)-
// two sets binding different resources must not hash alike.
type BindingDescription struct {
	Binding   int
	Type      core1_0.DescriptorType
	Count     int
	Stages    core1_0.ShaderStageFlags
	ContentID uint64
}

// BindingSignature identifies an equivalence class of descriptor set binding
// configurations: the layout the set was allocated against plus the content
// of its bindings.
type BindingSignature struct {
	Layout   DescriptorSetLayout
	Bindings []BindingDescription
}

// ContentHash returns the FNV-1a hash of the signature's bindings. The layout
// handle is compared separately on lookup, so it is not part of the hash.
func (s *BindingSignature) ContentHash() uint64 {
	hash := fnv.New64a()
	var scratch [8]byte

	writeInt := func(value uint64) {
		binary.LittleEndian.PutUint64(scratch[:], value)
		_, _ = hash.Write(scratch[:])
	}

	for i := range s.Bindings {
		binding := &s.Bindings[i]
		writeInt(uint64(binding.Binding))
		writeInt(uint64(binding.Type))
		writeInt(uint64(binding.Count))
		writeInt(uint64(binding.Stages))
		writeInt(binding.ContentID)
	}
	return hash.Sum64()
}

type cacheEntry struct {
	layout      DescriptorSetLayout
	contentHash uint64
	set         DescriptorSet

	lastUsedFrame uint64
	useCount      uint64
}

// DescriptorCacheCreateOptions contains optional settings when creating a
// DescriptorCache. It is valid to leave all the fields blank.
type DescriptorCacheCreateOptions struct {
	// Flags indicates specific behaviors to activate or deactivate
	Flags CreateFlags

	// MaxSetsPerSignature caps each signature bucket. Zero means the default
	// of 16. When a bucket is full, Put evicts its least-recently-used record.
	MaxSetsPerSignature int
}

const defaultMaxSetsPerSignature = 16

// DescriptorCache is a signature-keyed cache of descriptor set handles with
// bounded per-signature capacity and age-based eviction. The cache never
// creates or destroys descriptor sets: a miss tells the caller to allocate
// one and Put it, and evictions return the dropped handles so the owner can
// destroy or recycle them.
type DescriptorCache struct {
	logger *slog.Logger

	mutex               utils.OptionalMutex
	buckets             *swiss.Map[uint64, []*cacheEntry]
	maxSetsPerSignature int
	currentFrame        uint64

	entries int
	hits    int
	misses  int
	evicted int
}

// NewDescriptorCache creates an empty cache.
func NewDescriptorCache(logger *slog.Logger, options DescriptorCacheCreateOptions) *DescriptorCache {
	maxSets := options.MaxSetsPerSignature
	if maxSets <= 0 {
		maxSets = defaultMaxSetsPerSignature
	}

	return &DescriptorCache{
		logger:              logger,
		mutex:               utils.OptionalMutex{UseMutex: options.Flags&CreateExternallySynchronized == 0},
		buckets:             swiss.NewMap[uint64, []*cacheEntry](64),
		maxSetsPerSignature: maxSets,
	}
}

// Get looks up a cached descriptor set for the signature. On a hit the entry
// is promoted to most-recently-used, its bookkeeping is bumped, and the
// handle is returned. A miss returns (nil, false)- the caller should create a
// set and Put it.
func (c *DescriptorCache) Get(signature *BindingSignature) (DescriptorSet, bool) {
	contentHash := signature.ContentHash()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	bucket, ok := c.buckets.Get(contentHash)
	if ok {
		for i, entry := range bucket {
			if entry.layout == signature.Layout && entry.contentHash == contentHash {
				entry.lastUsedFrame = c.currentFrame
				entry.useCount++

				// Promote to the front: most-recently-used first.
				copy(bucket[1:i+1], bucket[:i])
				bucket[0] = entry

				c.hits++
				return entry.set, true
			}
		}
	}

	c.misses++
	return nil, false
}

// Put inserts a descriptor set at the front of its signature's bucket. If the
// bucket is at capacity the oldest record is dropped first and its handle
// returned- the cache does not destroy it; that remains the owner's job.
func (c *DescriptorCache) Put(signature *BindingSignature, set DescriptorSet) (evicted DescriptorSet, wasEvicted bool) {
	contentHash := signature.ContentHash()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry := &cacheEntry{
		layout:        signature.Layout,
		contentHash:   contentHash,
		set:           set,
		lastUsedFrame: c.currentFrame,
	}

	bucket, _ := c.buckets.Get(contentHash)
	if len(bucket) >= c.maxSetsPerSignature {
		oldest := bucket[len(bucket)-1]
		evicted = oldest.set
		wasEvicted = true
		bucket = bucket[:len(bucket)-1]
		c.entries--
		c.evicted++
	}

	bucket = append(bucket, nil)
	copy(bucket[1:], bucket)
	bucket[0] = entry
	c.buckets.Put(contentHash, bucket)
	c.entries++

	return evicted, wasEvicted
}

// NextFrame advances the frame counter and drops every entry that has not
// been used for more than maxAge frames, regardless of bucket occupancy. It
// returns the dropped handles for the owner to dispose of. This is the
// time-based complement to Put's capacity-based eviction.
func (c *DescriptorCache) NextFrame(maxAge uint64) []DescriptorSet {
	c.logger.Debug("DescriptorCache::NextFrame")

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.currentFrame++

	var dropped []DescriptorSet

	// Mutating the map during Iter is not supported, so stage the changes.
	type bucketUpdate struct {
		hash   uint64
		bucket []*cacheEntry
	}
	var updates []bucketUpdate
	var emptyBuckets []uint64

	c.buckets.Iter(func(hash uint64, bucket []*cacheEntry) bool {
		kept := bucket[:0]
		for _, entry := range bucket {
			if c.currentFrame-entry.lastUsedFrame > maxAge {
				dropped = append(dropped, entry.set)
				c.entries--
				c.evicted++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			emptyBuckets = append(emptyBuckets, hash)
		} else if len(kept) != len(bucket) {
			updates = append(updates, bucketUpdate{hash: hash, bucket: kept})
		}
		return false
	})

	for _, update := range updates {
		c.buckets.Put(update.hash, update.bucket)
	}
	for _, hash := range emptyBuckets {
		c.buckets.Delete(hash)
	}

	return dropped
}

// Clear drops every record and returns all cached handles to the owner.
func (c *DescriptorCache) Clear() []DescriptorSet {
	c.logger.Debug("DescriptorCache::Clear")

	c.mutex.Lock()
	defer c.mutex.Unlock()

	var dropped []DescriptorSet
	c.buckets.Iter(func(hash uint64, bucket []*cacheEntry) bool {
		for _, entry := range bucket {
			dropped = append(dropped, entry.set)
		}
		return false
	})

	c.evicted += len(dropped)
	c.entries = 0
	c.buckets = swiss.NewMap[uint64, []*cacheEntry](64)
	return dropped
}

// CurrentFrame returns the cache's frame counter.
func (c *DescriptorCache) CurrentFrame() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.currentFrame
}

// Stats returns a snapshot of cache activity.
func (c *DescriptorCache) Stats() CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return CacheStats{
		Entries: c.entries,
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
	}
}

// BuildStatsString writes cache activity as a JSON object.
func (c *DescriptorCache) BuildStatsString(writer *jwriter.Writer) {
	stats := c.Stats()
	obj := writer.Object()
	stats.printJSON(&obj)
	obj.End()
}
