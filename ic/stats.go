package ic

// ICStats holds aggregate inline cache statistics.
type ICStats struct {
	TotalSites      int     // Property and call sites
	Empty           int     // Sites never run past uninitialized
	Premonomorphic  int     // Sites that missed once
	Monomorphic     int     // Sites with one shape
	Polymorphic     int     // Sites with a shape list
	Megamorphic     int     // Named sites served by the stub cache
	Generic         int     // Keyed sites served by the runtime
	TotalHits       uint64  // Handler hits across all sites
	TotalMisses     uint64  // Misses across all sites
	HitRate         float64 // Overall hit rate percentage
	MonomorphicRate float64 // Percentage of used sites that are monomorphic

	CompareSites  int
	CompareHits   uint64
	CompareMisses uint64

	StubCacheEntries      int
	StubCacheUpdates      uint64
	HandlersCompiled      uint64
	Uncacheable           uint64
	Invalidations         uint64
	KeyedPolymorphicStubs uint64
}

// Stats returns the site state counts and hit/miss totals.
func (t *SiteTable) Stats() (stats ICStats) {
	t.Each(func(s *Site) {
		stats.TotalSites++
		switch s.State {
		case Uninitialized:
			stats.Empty++
		case Premonomorphic:
			stats.Premonomorphic++
		case Monomorphic:
			stats.Monomorphic++
		case Polymorphic:
			stats.Polymorphic++
		case Megamorphic:
			stats.Megamorphic++
		case Generic:
			stats.Generic++
		}
		stats.TotalHits += s.Hits
		stats.TotalMisses += s.Misses
	})
	t.EachCompare(func(s *CompareSite) {
		stats.CompareSites++
		stats.CompareHits += s.Hits
		stats.CompareMisses += s.Misses
	})
	return stats
}

// CollectICStats gathers inline cache statistics from an engine's sites
// and caches.
func CollectICStats(e *Engine) ICStats {
	stats := e.sites.Stats()

	stats.StubCacheEntries = e.stubs.Len()
	stats.StubCacheUpdates = e.stubs.Updates
	stats.HandlersCompiled = e.compiler.Compiled
	stats.Uncacheable = e.Counters.Uncacheable
	stats.Invalidations = e.Counters.Invalidations
	stats.KeyedPolymorphicStubs = e.Counters.KeyedPolymorphicStubs

	// Calculate rates
	stats.HitRate = hitRate(stats.TotalHits, stats.TotalMisses)
	used := stats.TotalSites - stats.Empty
	if used > 0 {
		stats.MonomorphicRate = float64(stats.Monomorphic) * 100 / float64(used)
	}
	return stats
}

// Add accumulates o into s. Rates are recomputed from the totals.
func (s *ICStats) Add(o ICStats) {
	s.TotalSites += o.TotalSites
	s.Empty += o.Empty
	s.Premonomorphic += o.Premonomorphic
	s.Monomorphic += o.Monomorphic
	s.Polymorphic += o.Polymorphic
	s.Megamorphic += o.Megamorphic
	s.Generic += o.Generic
	s.TotalHits += o.TotalHits
	s.TotalMisses += o.TotalMisses
	s.CompareSites += o.CompareSites
	s.CompareHits += o.CompareHits
	s.CompareMisses += o.CompareMisses
	s.StubCacheEntries += o.StubCacheEntries
	s.StubCacheUpdates += o.StubCacheUpdates
	s.HandlersCompiled += o.HandlersCompiled
	s.Uncacheable += o.Uncacheable
	s.Invalidations += o.Invalidations
	s.KeyedPolymorphicStubs += o.KeyedPolymorphicStubs

	s.HitRate = hitRate(s.TotalHits, s.TotalMisses)
	s.MonomorphicRate = 0
	if used := s.TotalSites - s.Empty; used > 0 {
		s.MonomorphicRate = float64(s.Monomorphic) * 100 / float64(used)
	}
}
