package opportunity

import (
	"sort"
	"strings"
	"time"

	"bizdesk/pkg/model"
)

// Filter selects opportunities. Zero-valued fields do not constrain.
type Filter struct {
	Stages     []model.Stage
	Priorities []model.Priority
	Source     string
	Type       string
	Owner      string
	Keyword    string // matched against name, customer and description
	MinAmount  *float64
	MaxAmount  *float64
	OnlyOpen   bool
	Overdue    bool
	Hot        bool
}

// Filter returns the opportunities matching f, preserving input order.
func (c *Catalog) Filter(list []model.Opportunity, f Filter, now time.Time) []model.Opportunity {
	kw := strings.ToLower(strings.TrimSpace(f.Keyword))
	out := make([]model.Opportunity, 0, len(list))
	for _, o := range list {
		if len(f.Stages) > 0 && !containsStage(f.Stages, o.Stage) {
			continue
		}
		if len(f.Priorities) > 0 && !containsPriority(f.Priorities, o.Priority) {
			continue
		}
		if f.Source != "" && o.Source != f.Source {
			continue
		}
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		if f.Owner != "" && o.Owner != f.Owner {
			continue
		}
		if f.MinAmount != nil && o.ExpectedAmount < *f.MinAmount {
			continue
		}
		if f.MaxAmount != nil && o.ExpectedAmount > *f.MaxAmount {
			continue
		}
		if f.OnlyOpen && o.Stage.Closed() {
			continue
		}
		if f.Overdue && !c.IsOverdue(o, now) {
			continue
		}
		if f.Hot && !c.IsHot(o, now) {
			continue
		}
		if kw != "" && !matchesKeyword(o, kw) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func matchesKeyword(o model.Opportunity, kw string) bool {
	return strings.Contains(strings.ToLower(o.Name), kw) ||
		strings.Contains(strings.ToLower(o.Customer), kw) ||
		strings.Contains(strings.ToLower(o.Description), kw)
}

func containsStage(list []model.Stage, s model.Stage) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []model.Priority, p model.Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

// Sort fields accepted by Sort.
const (
	SortByAmount    = "amount"
	SortByCloseDate = "close_date"
	SortByCreated   = "created"
	SortByScore     = "score"
	SortByName      = "name"
	SortByStage     = "stage"
)

// Sort returns a sorted copy of list. Unknown fields sort by creation time.
// Opportunities without a close date sort last for SortByCloseDate.
func (c *Catalog) Sort(list []model.Opportunity, field string, desc bool, now time.Time) []model.Opportunity {
	out := append([]model.Opportunity(nil), list...)
	less := func(a, b model.Opportunity) bool {
		switch field {
		case SortByAmount:
			return a.ExpectedAmount < b.ExpectedAmount
		case SortByScore:
			return c.Score(a, now) < c.Score(b, now)
		case SortByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case SortByStage:
			return c.StageConfig(a.Stage).Order < c.StageConfig(b.Stage).Order
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if field == SortByCloseDate {
			switch {
			case a.ExpectedCloseDate == nil:
				return false
			case b.ExpectedCloseDate == nil:
				return true
			case desc:
				return a.ExpectedCloseDate.After(*b.ExpectedCloseDate)
			default:
				return a.ExpectedCloseDate.Before(*b.ExpectedCloseDate)
			}
		}
		if desc {
			return less(b, a)
		}
		return less(a, b)
	})
	return out
}
