package opportunity

import (
	"math"
	"time"

	"bizdesk/pkg/model"
)

const (
	// HotScore is the score at or above which an open deal counts as hot.
	HotScore = 70
	// HotWindow is how close the expected close date must be for a high
	// priority deal to count as hot.
	HotWindow = 14 * 24 * time.Hour

	maxAgePenalty   = 20.0
	maxAmountBonus  = 30.0
	amountBonusRate = 4.0
)

// Score rates an opportunity from stage probability, priority, age and amount.
// The result is never negative and never decreases as ExpectedAmount grows.
func (c *Catalog) Score(o model.Opportunity, now time.Time) int {
	base := c.StageConfig(o.Stage).Probability * c.PriorityConfig(o.Priority).Multiplier
	score := base - agePenalty(o.CreatedAt, now) + amountBonus(o.ExpectedAmount)
	if score < 0 {
		return 0
	}
	return int(math.Round(score))
}

// agePenalty costs one point per week in the pipeline, capped.
func agePenalty(created, now time.Time) float64 {
	if created.IsZero() || !now.After(created) {
		return 0
	}
	weeks := now.Sub(created).Hours() / (24 * 7)
	return math.Min(weeks, maxAgePenalty)
}

func amountBonus(amount float64) float64 {
	if amount <= 0 || math.IsNaN(amount) {
		return 0
	}
	return math.Min(math.Log10(1+amount)*amountBonusRate, maxAmountBonus)
}

// IsOverdue reports whether an open opportunity is past its expected close date.
func (c *Catalog) IsOverdue(o model.Opportunity, now time.Time) bool {
	if o.ExpectedCloseDate == nil || o.Stage.Closed() {
		return false
	}
	return now.After(*o.ExpectedCloseDate)
}

// IsHot reports whether an open opportunity deserves attention: a high score,
// or a high/urgent priority deal closing within HotWindow.
func (c *Catalog) IsHot(o model.Opportunity, now time.Time) bool {
	if o.Stage.Closed() {
		return false
	}
	if c.Score(o, now) >= HotScore {
		return true
	}
	if o.Priority != model.PriorityHigh && o.Priority != model.PriorityUrgent {
		return false
	}
	if o.ExpectedCloseDate == nil || c.IsOverdue(o, now) {
		return false
	}
	return o.ExpectedCloseDate.Sub(now) <= HotWindow
}

// DaysToClose returns whole days until the expected close date; negative when
// overdue. ok is false without a close date.
func DaysToClose(o model.Opportunity, now time.Time) (days int, ok bool) {
	if o.ExpectedCloseDate == nil {
		return 0, false
	}
	d := o.ExpectedCloseDate.Sub(now).Hours() / 24
	return int(math.Floor(d)), true
}

// WeightedAmount is the amount discounted by stage probability.
func (c *Catalog) WeightedAmount(o model.Opportunity) float64 {
	return o.ExpectedAmount * c.StageConfig(o.Stage).Probability / 100
}

func Score(o model.Opportunity, now time.Time) int      { return Default.Score(o, now) }
func IsOverdue(o model.Opportunity, now time.Time) bool { return Default.IsOverdue(o, now) }
func IsHot(o model.Opportunity, now time.Time) bool     { return Default.IsHot(o, now) }
