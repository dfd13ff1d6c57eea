// Package cache provides a generic in-memory cache bounded by entry count and
// approximate memory, with per-entry TTL and strict LRU eviction.
//
// Each consumer owns its own instance with its own budget:
//
//	results := cache.New[*SearchResponse](cache.Config{
//	    Name:           "search",
//	    MaxEntries:     1000,
//	    MaxMemoryBytes: 50 << 20,
//	    DefaultTTL:     30 * time.Minute,
//	    SweepInterval:  time.Minute,
//	})
//	defer results.Close()
//
// Values are charged by ApproxSize when they implement Sizer, otherwise by a
// heuristic (string length x2, JSON length x2 for structured values, small
// constants for scalars). Estimation never fails; unmeasurable values are
// charged DefaultSizeEstimate.
//
// GetOrSet collapses concurrent loads of the same key into one call.
package cache
