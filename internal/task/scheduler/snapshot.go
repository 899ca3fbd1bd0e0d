package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: s.cfg.Timezone}
	if snap.Timezone == "" {
		loc := s.loc
		if loc == nil {
			loc = time.Local
		}
		snap.Timezone = loc.String()
	}
	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec}
		if d.startupSpread > 0 {
			it.Spread = d.startupSpread.Round(time.Second).String()
		}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		items = append(items, it)
	}
	s.mu.Unlock()

	s.wmu.Lock()
	for i := range items {
		items[i].Fired = s.fired[items[i].Name]
	}
	s.wmu.Unlock()

	snap.Schedules = items
	return snap
}
