package opportunity

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"bizdesk/pkg/model"
)

const maxNameLen = 100

// Validate returns human-readable problems with o; an empty slice means valid.
func (c *Catalog) Validate(o model.Opportunity) []string {
	var errs []string
	name := strings.TrimSpace(o.Name)
	switch {
	case name == "":
		errs = append(errs, "opportunity name is required")
	case utf8.RuneCountInString(name) > maxNameLen:
		errs = append(errs, fmt.Sprintf("opportunity name must be at most %d characters", maxNameLen))
	}
	if strings.TrimSpace(o.Customer) == "" {
		errs = append(errs, "customer is required")
	}
	if _, ok := c.Stages[o.Stage]; !ok {
		errs = append(errs, fmt.Sprintf("unknown stage %q", o.Stage))
	}
	if o.Priority != "" {
		if _, ok := c.Priorities[o.Priority]; !ok {
			errs = append(errs, fmt.Sprintf("unknown priority %q", o.Priority))
		}
	}
	if o.ExpectedAmount < 0 {
		errs = append(errs, "expected amount cannot be negative")
	}
	if o.Source != "" {
		if _, ok := c.Sources[o.Source]; !ok {
			errs = append(errs, fmt.Sprintf("unknown source %q", o.Source))
		}
	}
	if o.Type != "" {
		if _, ok := c.Types[o.Type]; !ok {
			errs = append(errs, fmt.Sprintf("unknown type %q", o.Type))
		}
	}
	if o.ExpectedCloseDate != nil && !o.CreatedAt.IsZero() && o.ExpectedCloseDate.Before(o.CreatedAt) {
		errs = append(errs, "expected close date cannot be before the creation date")
	}
	return errs
}

func Validate(o model.Opportunity) []string { return Default.Validate(o) }
