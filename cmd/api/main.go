package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/carlosarta/haida/internal/audit"
	"github.com/carlosarta/haida/internal/httpapi"
	"github.com/carlosarta/haida/internal/membership"
	"github.com/carlosarta/haida/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Postgres when a DSN is set, in-memory otherwise (dev and tests).
	var (
		db         *sql.DB
		store      membership.Store
		auditStore audit.Store
	)
	if dsn := os.Getenv("HAIDA_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = membership.NewPGStore(db)
		auditStore = audit.NewPGStore(db)
	} else {
		store = membership.NewMemory()
		auditStore = audit.NewMemory()
	}

	svc := membership.NewService(store, audit.NewLog(auditStore))

	// Optional first-run admin; a no-op once any user exists.
	if email := os.Getenv("HAIDA_BOOTSTRAP_ADMIN_EMAIL"); email != "" {
		password := os.Getenv("HAIDA_BOOTSTRAP_ADMIN_PASSWORD")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := svc.Bootstrap(ctx, email, password); err != nil && !errors.Is(err, membership.ErrConflict) {
			log.Fatalf("bootstrap admin: %v", err)
		}
		cancel()
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("HAIDA_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting haida-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
