//go:build !consul

package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"bizdesk/pkg/opportunity"
)

// ErrConsulDisabled is returned when the binary was built without the consul tag.
var ErrConsulDisabled = errors.New("consul support not enabled (build with -tags consul)")

// WatchEnabled returns false when consul build tag is not present.
func WatchEnabled() bool { return false }

func FetchConsul(_ context.Context, _, _ string, _ *opportunity.Catalog) (*opportunity.Catalog, error) {
	return nil, ErrConsulDisabled
}

// StartConsulWatch is a no-op without consul tag.
func StartConsulWatch(_ context.Context, _, _ string, _ *opportunity.Catalog, _ *Holder, _ zerolog.Logger) error {
	return nil
}
