package cache

// Stats is a point-in-time view of store activity.
type Stats struct {
	Entries     int   // stored entries, including unobserved expired ones
	Hits        int64 // reads that returned a live value
	Misses      int64 // reads of absent or expired keys
	Expirations int64 // entries evicted because they expired
}

// HitRate returns hits / (hits + misses), or 0 before any read.
func (st Stats) HitRate() float64 {
	total := st.Hits + st.Misses
	if total == 0 {
		return 0
	}
	return float64(st.Hits) / float64(total)
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Entries:     s.Len(),
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Expirations: s.expirations.Load(),
	}
}
