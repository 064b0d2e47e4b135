package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bizdesk/pkg/api"
	"bizdesk/pkg/approval"
	"bizdesk/pkg/auth"
	"bizdesk/pkg/catalog"
	"bizdesk/pkg/config"
	"bizdesk/pkg/db"
	"bizdesk/pkg/logging"
	"bizdesk/pkg/opportunity"
	"bizdesk/pkg/store"
	"bizdesk/pkg/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "store backend: memory|mysql")
	flag.StringVar(&cfg.MySQLDSN, "mysql-dsn", cfg.MySQLDSN, "mysql DSN (when store=mysql)")
	flag.StringVar(&cfg.AuditDB, "audit-db", cfg.AuditDB, "sqlite file for the audit journal (optional)")
	flag.StringVar(&cfg.BootToken, "token", cfg.BootToken, "bootstrap admin token (optional)")
	flag.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "YAML catalog override file (optional)")
	flag.StringVar(&cfg.ConsulAddr, "consul-addr", cfg.ConsulAddr, "consul address for catalog overrides (requires build tag consul)")
	flag.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS cert path (enables HTTPS if set with --tls-key)")
	flag.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS key path (enables HTTPS if set with --tls-cert)")
	flag.StringVar(&cfg.ClientCA, "client-ca", cfg.ClientCA, "require and verify client certs using this CA (optional)")
	flag.Parse()

	log := logging.New(cfg.LogLevel, cfg.Production())
	info := version.Current()
	log.Info().Str("build", info.Build).Str("store", cfg.Store).Msg("starting bizdesk")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer closeStore()

	holder, err := loadCatalog(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("load catalog")
	}

	hub := api.NewHub(log)
	approvals := approval.NewService(st, hub, log, approval.WithUrgeInterval(cfg.UrgeInterval))
	srv := api.NewServer(st, approvals, holder, auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL), hub, log)
	srv.BootToken = cfg.BootToken

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.TLSEnabled() {
		if httpSrv.TLSConfig, err = cfg.TLSConfig(); err != nil {
			log.Fatal().Err(err).Msg("build TLS config")
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Bool("tls", cfg.TLSEnabled()).Msg("listening")
	if cfg.TLSEnabled() {
		err = httpSrv.ListenAndServeTLS("", "")
	} else {
		err = httpSrv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	var st store.Store
	closers := []func(){}
	switch cfg.Store {
	case "mysql":
		gdb, err := db.Init(cfg.MySQLDSN, store.Models()...)
		if err != nil {
			return nil, nil, err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		st = store.NewGormStore(gdb)
	default:
		st = store.NewMemory()
	}
	if cfg.AuditDB != "" {
		journal, err := store.OpenSQLiteAudit(ctx, cfg.AuditDB)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = journal.Close() })
		st = store.WithAudit(st, journal)
	}
	return st, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// loadCatalog applies the file override first; consul, when configured,
// replaces it and keeps the holder current.
func loadCatalog(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*catalog.Holder, error) {
	base := opportunity.DefaultCatalog()
	if cfg.CatalogFile != "" {
		c, err := catalog.LoadFile(cfg.CatalogFile, base)
		if err != nil {
			return nil, err
		}
		base = c
	}
	holder := catalog.NewHolder(base)
	if cfg.ConsulAddr == "" {
		return holder, nil
	}
	if !catalog.WatchEnabled() {
		log.Warn().Msg("consul address set but binary built without consul tag; ignoring")
		return holder, nil
	}
	if c, err := catalog.FetchConsul(ctx, cfg.ConsulAddr, cfg.CatalogKey, base); err != nil {
		log.Warn().Err(err).Str("key", cfg.CatalogKey).Msg("initial catalog fetch failed; using local catalog")
	} else if c != nil {
		holder.Set(c)
	}
	if err := catalog.StartConsulWatch(ctx, cfg.ConsulAddr, cfg.CatalogKey, base, holder, log); err != nil {
		return nil, err
	}
	return holder, nil
}
