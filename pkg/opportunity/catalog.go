// Package opportunity holds the pure pipeline utilities: config lookups,
// scoring, filtering, funnel and report aggregation, and validation.
//
// Every function is side-effect free and recomputes its result from the input
// slice on each call.
package opportunity

import "bizdesk/pkg/model"

// StageInfo describes a pipeline stage.
type StageInfo struct {
	Label       string  `json:"label" yaml:"label"`
	Color       string  `json:"color" yaml:"color"`
	Probability float64 `json:"probability" yaml:"probability"` // 0-100
	Order       int     `json:"order" yaml:"order"`
}

// PriorityInfo describes a priority level.
type PriorityInfo struct {
	Label      string  `json:"label" yaml:"label"`
	Color      string  `json:"color" yaml:"color"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// Option is a label/color pair for type and source pickers.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Color string `json:"color" yaml:"color"`
}

// Catalog holds the lookup tables the utilities are driven by.
type Catalog struct {
	Stages     map[model.Stage]StageInfo       `json:"stages"`
	Priorities map[model.Priority]PriorityInfo `json:"priorities"`
	Types      map[string]Option               `json:"types"`
	Sources    map[string]Option               `json:"sources"`
}

// Flow is the forward order of open and won stages. LOST sits outside it.
var Flow = []model.Stage{
	model.StageDiscovery,
	model.StageQualified,
	model.StageProposal,
	model.StageNegotiation,
	model.StageWon,
}

var neutral = Option{Label: "Unknown", Color: "default"}

// DefaultCatalog returns a fresh copy of the built-in tables.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Stages: map[model.Stage]StageInfo{
			model.StageDiscovery:   {Label: "Discovery", Color: "blue", Probability: 10, Order: 0},
			model.StageQualified:   {Label: "Qualified", Color: "cyan", Probability: 30, Order: 1},
			model.StageProposal:    {Label: "Proposal", Color: "purple", Probability: 50, Order: 2},
			model.StageNegotiation: {Label: "Negotiation", Color: "orange", Probability: 75, Order: 3},
			model.StageWon:         {Label: "Won", Color: "green", Probability: 100, Order: 4},
			model.StageLost:        {Label: "Lost", Color: "red", Probability: 0, Order: 5},
		},
		Priorities: map[model.Priority]PriorityInfo{
			model.PriorityLow:    {Label: "Low", Color: "default", Multiplier: 0.8},
			model.PriorityMedium: {Label: "Medium", Color: "blue", Multiplier: 1.0},
			model.PriorityHigh:   {Label: "High", Color: "orange", Multiplier: 1.2},
			model.PriorityUrgent: {Label: "Urgent", Color: "red", Multiplier: 1.5},
		},
		Types: map[string]Option{
			"NEW_BUSINESS":      {Label: "New business", Color: "green"},
			"EXISTING_BUSINESS": {Label: "Existing business", Color: "blue"},
			"RENEWAL":           {Label: "Renewal", Color: "cyan"},
			"UPSELL":            {Label: "Upsell", Color: "purple"},
		},
		Sources: map[string]Option{
			"WEBSITE":       {Label: "Website", Color: "blue"},
			"REFERRAL":      {Label: "Referral", Color: "green"},
			"EXHIBITION":    {Label: "Exhibition", Color: "purple"},
			"COLD_CALL":     {Label: "Cold call", Color: "orange"},
			"PARTNER":       {Label: "Partner", Color: "cyan"},
			"ADVERTISEMENT": {Label: "Advertisement", Color: "magenta"},
			"OTHER":         {Label: "Other", Color: "default"},
		},
	}
}

// Default is the catalog used by the package-level helpers.
var Default = DefaultCatalog()

// StageConfig returns the stage entry, or a neutral zero-probability entry.
func (c *Catalog) StageConfig(s model.Stage) StageInfo {
	if info, ok := c.Stages[s]; ok {
		return info
	}
	return StageInfo{Label: neutral.Label, Color: neutral.Color, Order: -1}
}

// PriorityConfig returns the priority entry; unknown priorities weigh 1.0.
func (c *Catalog) PriorityConfig(p model.Priority) PriorityInfo {
	if info, ok := c.Priorities[p]; ok {
		return info
	}
	return PriorityInfo{Label: neutral.Label, Color: neutral.Color, Multiplier: 1}
}

func (c *Catalog) TypeConfig(t string) Option {
	if o, ok := c.Types[t]; ok {
		return o
	}
	return neutral
}

func (c *Catalog) SourceConfig(s string) Option {
	if o, ok := c.Sources[s]; ok {
		return o
	}
	return neutral
}

// Clone deep-copies the tables so overrides never touch the receiver.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{
		Stages:     make(map[model.Stage]StageInfo, len(c.Stages)),
		Priorities: make(map[model.Priority]PriorityInfo, len(c.Priorities)),
		Types:      make(map[string]Option, len(c.Types)),
		Sources:    make(map[string]Option, len(c.Sources)),
	}
	for k, v := range c.Stages {
		out.Stages[k] = v
	}
	for k, v := range c.Priorities {
		out.Priorities[k] = v
	}
	for k, v := range c.Types {
		out.Types[k] = v
	}
	for k, v := range c.Sources {
		out.Sources[k] = v
	}
	return out
}

// NextStage returns the stage after s in Flow, or false at the end or off-flow.
func NextStage(s model.Stage) (model.Stage, bool) {
	for i, st := range Flow {
		if st == s && i+1 < len(Flow) {
			return Flow[i+1], true
		}
	}
	return "", false
}

// PrevStage returns the stage before s in Flow, or false at the start or off-flow.
func PrevStage(s model.Stage) (model.Stage, bool) {
	for i, st := range Flow {
		if st == s && i > 0 {
			return Flow[i-1], true
		}
	}
	return "", false
}

func flowIndex(s model.Stage) int {
	for i, st := range Flow {
		if st == s {
			return i
		}
	}
	return -1
}

func StageConfig(s model.Stage) StageInfo          { return Default.StageConfig(s) }
func PriorityConfig(p model.Priority) PriorityInfo { return Default.PriorityConfig(p) }
