package service

import (
	"github.com/totemic/totemic-go/internal/model"
)

// WeekMillis is the decay window: a like's weight falls linearly to zero
// over exactly one week of inactivity.
const WeekMillis int64 = 7 * 24 * 60 * 60 * 1000

// DecayService computes crispness, the time-decayed popularity score of a
// label. Pure functions of the like history and a resolved now; no state,
// no I/O.
type DecayService struct{}

func NewDecayService() *DecayService {
	return &DecayService{}
}

// Weight returns the freshness weight of a like last updated at the given
// epoch-millisecond time:
//
//	weight = max(0, 1 - (now - lastUpdatedAt) / WeekMillis)
//
// A like updated now weighs 1.0; a week-old like weighs exactly 0 and stays
// there. Timestamps in the future read as fully fresh.
func (s *DecayService) Weight(now, lastUpdatedAt int64) float64 {
	elapsed := now - lastUpdatedAt
	if elapsed <= 0 {
		return 1
	}
	if elapsed >= WeekMillis {
		return 0
	}
	return 1 - float64(elapsed)/float64(WeekMillis)
}

// Crispness returns the weighted average of like values over the active
// events only, scaled to 0-100. Zero-weight events drop out of both the
// numerator and the denominator; they do not pull the average down. With no
// active events, or when every active event has fully decayed, the ratio is
// the degenerate 0/0 and is defined as 0.
func (s *DecayService) Crispness(events []model.LikeEvent, now int64) float64 {
	var weightSum, weightedValue float64
	for i := range events {
		e := &events[i]
		if !e.IsActive {
			continue
		}
		w := s.Weight(now, e.LastUpdatedAt)
		if w == 0 {
			continue
		}
		weightSum += w
		weightedValue += w * e.Value
	}
	if weightSum == 0 {
		return 0
	}
	return 100 * weightedValue / weightSum
}

// LabelCrispness is Crispness over a label's history.
func (s *DecayService) LabelCrispness(l *model.Label, now int64) float64 {
	return s.Crispness(l.LikeHistory, now)
}
