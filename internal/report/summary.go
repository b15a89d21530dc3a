// Package report implements the final-report/observability surface from
// spec §4.10 (ambient, named in spec.md §7): per-session counters by media
// kind, elapsed time, throughput, localized rendering, and the
// external StatsReporter contract.
package report

import "time"

// CategoryCounts tallies outcomes for one media-kind bucket within a
// session. Outcomes are not broken down by retry.Category.
type CategoryCounts struct {
	Succeeded int
	Failed    int
}

// SessionStats is one session's contribution to the run, keyed by media
// kind string (message.Kind.String()).
type SessionStats struct {
	Name           string
	ByKind         map[string]*CategoryCounts
	BytesConsumed  int64
	MessagesSeen   int
}

func newSessionStats(name string) *SessionStats {
	return &SessionStats{Name: name, ByKind: map[string]*CategoryCounts{}}
}

func (s *SessionStats) record(kind string, succeeded bool, bytes int64) {
	c, ok := s.ByKind[kind]
	if !ok {
		c = &CategoryCounts{}
		s.ByKind[kind] = c
	}
	if succeeded {
		c.Succeeded++
	} else {
		c.Failed++
	}
	s.BytesConsumed += bytes
	s.MessagesSeen++
}

// Summary is spec §4.10's report.Summary: the full shape handed to the
// localized renderer and to any configured StatsReporter.
type Summary struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Sessions  map[string]*SessionStats

	TargetedTotal int // media-bearing messages found in the fetched range
	Succeeded     int
	Failed        int
}

// NewSummary starts a Summary for targeted total messages.
func NewSummary(runID string, targetedTotal int, started time.Time) *Summary {
	return &Summary{RunID: runID, Started: started, Sessions: map[string]*SessionStats{}, TargetedTotal: targetedTotal}
}

// Record folds one item's outcome into the summary, creating the
// session's bucket on first use.
func (s *Summary) Record(sessionName, kind string, succeeded bool, bytes int64) {
	sess, ok := s.Sessions[sessionName]
	if !ok {
		sess = newSessionStats(sessionName)
		s.Sessions[sessionName] = sess
	}
	sess.record(kind, succeeded, bytes)
	if succeeded {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// Elapsed is Finished-Started, or now-Started if still running.
func (s *Summary) Elapsed(now time.Time) time.Duration {
	if s.Finished.IsZero() {
		return now.Sub(s.Started)
	}
	return s.Finished.Sub(s.Started)
}

// ThroughputMbps is spec.md §7's "throughput in Mbps" figure.
func (s *Summary) ThroughputMbps(now time.Time) float64 {
	elapsed := s.Elapsed(now).Seconds()
	if elapsed <= 0 {
		return 0
	}
	var totalBytes int64
	for _, sess := range s.Sessions {
		totalBytes += sess.BytesConsumed
	}
	bits := float64(totalBytes) * 8
	return bits / elapsed / 1_000_000
}

// SuccessRatio is the fraction of TargetedTotal that succeeded, the
// input to spec.md §6.4's exit-code ladder.
func (s *Summary) SuccessRatio() float64 {
	if s.TargetedTotal == 0 {
		return 1
	}
	return float64(s.Succeeded) / float64(s.TargetedTotal)
}
