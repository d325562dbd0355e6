package scheduler

// Snapshot returns a point-in-time view of all live jobs.
func (s *Service) Snapshot() Snapshot {
	now := s.clock.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		items = append(items, j.infoLocked())
	}
	return Snapshot{Now: now, Closed: s.closed, Jobs: items}
}
