package service

import "time"

// Candidate is one computed reminder instant. Final marks the "last call"
// notification, the one at or past the time point's own target.
type Candidate struct {
	At    time.Time
	Final bool
}

// ReminderStream lazily yields the ordered candidate instants of one
// (task, time point) reminder stream. Pure: feed it a fixed now and the
// output is deterministic. The stream ends after the first final
// candidate, when a candidate passes the end instant, or when the caller
// stops asking.
type ReminderStream struct {
	target    time.Time
	interval  time.Duration
	end       *time.Time
	next      time.Time
	exhausted bool
}

// NewReminderStream starts a stream for the given target. The first
// candidate is target minus offset; if that is already in the past it is
// clamped to now, and the interval cadence continues from there.
func NewReminderStream(target time.Time, offset, interval time.Duration, end *time.Time, now time.Time) *ReminderStream {
	start := target.Add(-offset)
	if start.Before(now) {
		start = now
	}
	return &ReminderStream{
		target:   target,
		interval: interval,
		end:      end,
		next:     start,
	}
}

// ResumeReminderStream continues a stream whose latest materialized
// candidate was last. If last already reached the target the stream is
// spent: nothing is ever scheduled past a final candidate.
func ResumeReminderStream(last time.Time, interval time.Duration, target time.Time, end *time.Time) *ReminderStream {
	return &ReminderStream{
		target:    target,
		interval:  interval,
		end:       end,
		next:      last.Add(interval),
		exhausted: !last.Before(target),
	}
}

// Next returns the following candidate, or ok=false when the stream has
// ended.
func (s *ReminderStream) Next() (Candidate, bool) {
	if s.exhausted || s.interval <= 0 {
		return Candidate{}, false
	}
	if s.end != nil && s.next.After(*s.end) {
		s.exhausted = true
		return Candidate{}, false
	}

	c := Candidate{At: s.next, Final: !s.next.Before(s.target)}
	if c.Final {
		s.exhausted = true
	}
	s.next = s.next.Add(s.interval)
	return c, true
}

// Take materializes up to count candidates.
func (s *ReminderStream) Take(count int) []Candidate {
	candidates := make([]Candidate, 0, count)
	for len(candidates) < count {
		c, ok := s.Next()
		if !ok {
			break
		}
		candidates = append(candidates, c)
	}
	return candidates
}
