package opportunity

import (
	"math"
	"sort"
	"time"

	"bizdesk/pkg/model"
)

// FunnelStage is one bar of the pipeline funnel.
type FunnelStage struct {
	Stage   model.Stage `json:"stage"`
	Label   string      `json:"label"`
	Color   string      `json:"color"`
	Count   int         `json:"count"`   // currently in this stage
	Amount  float64     `json:"amount"`  // expected amount currently in this stage
	Reached int         `json:"reached"` // at this stage or further along the flow
}

// Conversion is the share of deals that moved from one stage to the next.
type Conversion struct {
	From model.Stage `json:"from"`
	To   model.Stage `json:"to"`
	Rate float64     `json:"rate"` // percent, one decimal
}

// Breakdown aggregates opportunities sharing a key (source, owner).
type Breakdown struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
	Won    int     `json:"won"`
}

// Report summarizes a pipeline.
type Report struct {
	Total            int         `json:"total"`
	Open             int         `json:"open"`
	Won              int         `json:"won"`
	Lost             int         `json:"lost"`
	TotalAmount      float64     `json:"total_amount"`
	OpenAmount       float64     `json:"open_amount"`
	WonAmount        float64     `json:"won_amount"`
	LostAmount       float64     `json:"lost_amount"`
	WeightedPipeline float64     `json:"weighted_pipeline"`
	AverageDealSize  float64     `json:"average_deal_size"`
	WinRate          float64     `json:"win_rate"`
	Overdue          int         `json:"overdue"`
	Hot              int         `json:"hot"`
	BySource         []Breakdown `json:"by_source"`
	ByOwner          []Breakdown `json:"by_owner"`
	GeneratedAt      time.Time   `json:"generated_at"`
}

// reachedIndex is how far along Flow an opportunity got. LOST deals are only
// known to have entered the pipeline.
func reachedIndex(s model.Stage) int {
	if s == model.StageLost {
		return 0
	}
	return flowIndex(s)
}

// Funnel returns one entry per Flow stage, in flow order.
func (c *Catalog) Funnel(list []model.Opportunity) []FunnelStage {
	out := make([]FunnelStage, len(Flow))
	for i, s := range Flow {
		info := c.StageConfig(s)
		out[i] = FunnelStage{Stage: s, Label: info.Label, Color: info.Color}
	}
	for _, o := range list {
		if i := flowIndex(o.Stage); i >= 0 {
			out[i].Count++
			out[i].Amount += o.ExpectedAmount
		}
		for i := 0; i <= reachedIndex(o.Stage); i++ {
			out[i].Reached++
		}
	}
	return out
}

// ConversionRates returns the stage-to-stage conversion along Flow.
func (c *Catalog) ConversionRates(list []model.Opportunity) []Conversion {
	funnel := c.Funnel(list)
	out := make([]Conversion, 0, len(funnel)-1)
	for i := 0; i+1 < len(funnel); i++ {
		conv := Conversion{From: funnel[i].Stage, To: funnel[i+1].Stage}
		if funnel[i].Reached > 0 {
			conv.Rate = round1(float64(funnel[i+1].Reached) / float64(funnel[i].Reached) * 100)
		}
		out = append(out, conv)
	}
	return out
}

// Report aggregates list into a pipeline summary.
func (c *Catalog) Report(list []model.Opportunity, now time.Time) Report {
	r := Report{GeneratedAt: now}
	bySource := map[string]*Breakdown{}
	byOwner := map[string]*Breakdown{}

	for _, o := range list {
		r.Total++
		r.TotalAmount += o.ExpectedAmount
		switch o.Stage {
		case model.StageWon:
			r.Won++
			r.WonAmount += o.ExpectedAmount
		case model.StageLost:
			r.Lost++
			r.LostAmount += o.ExpectedAmount
		default:
			r.Open++
			r.OpenAmount += o.ExpectedAmount
			r.WeightedPipeline += c.WeightedAmount(o)
		}
		if c.IsOverdue(o, now) {
			r.Overdue++
		}
		if c.IsHot(o, now) {
			r.Hot++
		}
		addBreakdown(bySource, o, o.Source, c.SourceConfig(o.Source).Label)
		addBreakdown(byOwner, o, o.Owner, o.Owner)
	}

	if r.Won > 0 {
		r.AverageDealSize = round1(r.WonAmount / float64(r.Won))
	}
	if closed := r.Won + r.Lost; closed > 0 {
		r.WinRate = round1(float64(r.Won) / float64(closed) * 100)
	}
	r.WeightedPipeline = round1(r.WeightedPipeline)
	r.BySource = flatten(bySource)
	r.ByOwner = flatten(byOwner)
	return r
}

func addBreakdown(m map[string]*Breakdown, o model.Opportunity, key, label string) {
	if key == "" {
		key = "UNASSIGNED"
		label = "Unassigned"
	}
	b, ok := m[key]
	if !ok {
		b = &Breakdown{Key: key, Label: label}
		m[key] = b
	}
	b.Count++
	b.Amount += o.ExpectedAmount
	if o.Stage == model.StageWon {
		b.Won++
	}
}

func flatten(m map[string]*Breakdown) []Breakdown {
	out := make([]Breakdown, 0, len(m))
	for _, b := range m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func Funnel(list []model.Opportunity) []FunnelStage            { return Default.Funnel(list) }
func ConversionRates(list []model.Opportunity) []Conversion    { return Default.ConversionRates(list) }
func BuildReport(list []model.Opportunity, now time.Time) Report { return Default.Report(list, now) }
