package ratelimit

import (
	"sync/atomic"
	"time"
)

type gateStats struct {
	admitted      atomic.Int64
	waitedNanos   atomic.Int64
	globalDenials atomic.Int64
}

// Stats is a snapshot of gate activity.
type Stats struct {
	Admitted      int64         `json:"admitted"`
	TotalWait     time.Duration `json:"total_wait"`
	GlobalDenials int64         `json:"global_denials"`
	Degraded      bool          `json:"degraded"`
}

func (s *gateStats) record(waited time.Duration) {
	s.admitted.Add(1)
	s.waitedNanos.Add(int64(waited))
}

func (s *gateStats) snapshot() Stats {
	return Stats{
		Admitted:      s.admitted.Load(),
		TotalWait:     time.Duration(s.waitedNanos.Load()),
		GlobalDenials: s.globalDenials.Load(),
	}
}
