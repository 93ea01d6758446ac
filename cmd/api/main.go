package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewbase.org/internal/audit"
	"crewbase.org/internal/auth"
	"crewbase.org/internal/config"
	"crewbase.org/internal/httpapi"
	"crewbase.org/internal/obs"
	"crewbase.org/internal/ratelimit"
	"crewbase.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Postgres when a DSN is set, in-memory otherwise (dev/demo runs).
	var (
		store auth.Store
		db    *sql.DB
	)
	if cfg.DatabaseDSN != "" {
		pgStore, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		log.Println("CREWBASE_PG_DSN not set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	recorder := audit.NewRecorder(store.Audit(context.Background()))
	defer recorder.Close()

	codec, err := auth.NewCodec(cfg.AuthSecret, cfg.Issuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	sessions, err := auth.NewSessionManager(store, codec,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithVerifyTTL(cfg.VerifyTTL),
		auth.WithAudit(recorder),
	)
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}
	resolver, err := auth.NewResolver(store, codec, sessions)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}

	limiter := ratelimit.NewPerKey(cfg.RatePerSec, cfg.RateBurst)
	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, store, sessions, resolver, recorder, limiter)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Expired revocation entries are storage hygiene only; prune hourly.
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	go pruneRevoked(pruneCtx, store)

	log.Printf("Starting crewbase-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopPrune()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func pruneRevoked(ctx context.Context, store auth.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Revocations(ctx).PruneExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Printf("prune revoked tokens: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("pruned %d expired revoked tokens", n)
			}
		}
	}
}
