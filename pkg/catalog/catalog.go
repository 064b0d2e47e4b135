// Package catalog loads overrides for the opportunity lookup tables from a
// YAML document, either a local file or a Consul KV key.
package catalog

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"bizdesk/pkg/model"
	"bizdesk/pkg/opportunity"
)

type stageOverride struct {
	Label       *string  `yaml:"label"`
	Color       *string  `yaml:"color"`
	Probability *float64 `yaml:"probability"`
}

type priorityOverride struct {
	Label      *string  `yaml:"label"`
	Color      *string  `yaml:"color"`
	Multiplier *float64 `yaml:"multiplier"`
}

type document struct {
	Stages     map[model.Stage]stageOverride       `yaml:"stages"`
	Priorities map[model.Priority]priorityOverride `yaml:"priorities"`
	Types      map[string]opportunity.Option       `yaml:"types"`
	Sources    map[string]opportunity.Option       `yaml:"sources"`
}

// Parse applies the YAML overrides in data on top of a copy of base. Stages and
// priorities must already exist in base; types and sources may be added.
func Parse(data []byte, base *opportunity.Catalog) (*opportunity.Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	out := base.Clone()
	for s, o := range doc.Stages {
		info, ok := out.Stages[s]
		if !ok {
			return nil, fmt.Errorf("catalog: unknown stage %q", s)
		}
		if o.Label != nil {
			info.Label = *o.Label
		}
		if o.Color != nil {
			info.Color = *o.Color
		}
		if o.Probability != nil {
			if *o.Probability < 0 || *o.Probability > 100 {
				return nil, fmt.Errorf("catalog: stage %s probability %v out of range 0-100", s, *o.Probability)
			}
			info.Probability = *o.Probability
		}
		out.Stages[s] = info
	}
	for p, o := range doc.Priorities {
		info, ok := out.Priorities[p]
		if !ok {
			return nil, fmt.Errorf("catalog: unknown priority %q", p)
		}
		if o.Label != nil {
			info.Label = *o.Label
		}
		if o.Color != nil {
			info.Color = *o.Color
		}
		if o.Multiplier != nil {
			if *o.Multiplier < 0 {
				return nil, fmt.Errorf("catalog: priority %s multiplier must not be negative", p)
			}
			info.Multiplier = *o.Multiplier
		}
		out.Priorities[p] = info
	}
	for k, v := range doc.Types {
		out.Types[k] = v
	}
	for k, v := range doc.Sources {
		out.Sources[k] = v
	}
	return out, nil
}

// LoadFile reads path and applies it with Parse.
func LoadFile(path string, base *opportunity.Catalog) (*opportunity.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, base)
}

// Holder publishes the active catalog to concurrent readers.
type Holder struct {
	p atomic.Pointer[opportunity.Catalog]
}

func NewHolder(c *opportunity.Catalog) *Holder {
	h := &Holder{}
	h.Set(c)
	return h
}

func (h *Holder) Get() *opportunity.Catalog { return h.p.Load() }

func (h *Holder) Set(c *opportunity.Catalog) {
	if c == nil {
		c = opportunity.DefaultCatalog()
	}
	h.p.Store(c)
}
