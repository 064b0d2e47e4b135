//go:build consul

package catalog

import (
	"context"
	"fmt"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"

	"bizdesk/pkg/opportunity"
)

// WatchEnabled returns true when consul tag is on.
func WatchEnabled() bool { return true }

func newClient(addr string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	return consulapi.NewClient(cfg)
}

// FetchConsul reads the YAML overrides stored at key and applies them to base.
func FetchConsul(ctx context.Context, addr, key string, base *opportunity.Catalog) (*opportunity.Catalog, error) {
	cli, err := newClient(addr)
	if err != nil {
		return nil, err
	}
	kv, _, err := cli.KV().Get(key, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if kv == nil {
		return nil, fmt.Errorf("catalog key %q not found", key)
	}
	return Parse(kv.Value, base)
}

// StartConsulWatch follows key with blocking queries and swaps h's catalog on
// every change. Invalid documents are logged and leave the current catalog.
func StartConsulWatch(ctx context.Context, addr, key string, base *opportunity.Catalog, h *Holder, log zerolog.Logger) error {
	cli, err := newClient(addr)
	if err != nil {
		return err
	}
	go func() {
		q := &consulapi.QueryOptions{}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			kv, meta, err := cli.KV().Get(key, q.WithContext(ctx))
			if err != nil || kv == nil {
				time.Sleep(time.Second)
				continue
			}
			if meta.LastIndex != q.WaitIndex {
				c, perr := Parse(kv.Value, base)
				if perr != nil {
					log.Warn().Err(perr).Str("key", key).Msg("catalog update rejected")
				} else {
					h.Set(c)
					log.Info().Str("key", key).Uint64("index", meta.LastIndex).Msg("catalog updated")
				}
			}
			q.WaitIndex = meta.LastIndex
		}
	}()
	return nil
}
