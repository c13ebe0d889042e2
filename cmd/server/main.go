package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"geyim/backend/internal/alerts"
	"geyim/backend/internal/cache"
	"geyim/backend/internal/config"
	"geyim/backend/internal/events"
	"geyim/backend/internal/httpapi"
	"geyim/backend/internal/printer"
	"geyim/backend/internal/scheduler"
	"geyim/backend/internal/service"
	"geyim/backend/internal/session"
	"geyim/backend/internal/store"
	"geyim/backend/internal/store/memory"
	pgstore "geyim/backend/internal/store/postgres"
	sqlitestore "geyim/backend/internal/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Printf("%v, using UTC", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	debtCache := cache.DebtCache(cache.NoopDebtCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDebtCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			debtCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	hub := events.NewHub(cfg.AllowedOrigin)
	go hub.Run(runCtx)

	svc := service.New(repo, service.Options{
		DebtCache:    debtCache,
		DebtCacheTTL: time.Duration(cfg.DebtCacheTTLSeconds) * time.Second,
		Events:       hub,
		Alerts:       alerts.NewTracker(),
		Location:     loc,
	})

	jobs := []scheduler.Job{
		{Name: "low-stock-scan", Timeout: 30 * time.Second, Run: svc.ScanLowStock},
		{Name: "debt-cache-warm", Timeout: 30 * time.Second, Run: svc.WarmDebtCache},
	}
	sched, err := scheduler.New(cfg.LowStockScanSpec, jobs...)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	scheduler.RunNow(jobs...)
	sched.Start()

	sessions := session.NewManager(cfg.IdleLockTimeout())
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, svc)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Sessions:      sessions,
		Events:        hub,
		Printers:      printer.NewDiscovery(time.Duration(cfg.PrinterBrowseSeconds) * time.Second),
	})

	var announcer *printer.Announcer
	if cfg.MDNSAnnounce {
		if port, err := announcePort(cfg); err != nil {
			log.Printf("mdns announce skipped: %v", err)
		} else if announcer, err = printer.Announce("Geyim POS", port); err != nil {
			log.Printf("mdns announce failed: %v", err)
		} else {
			log.Printf("mdns: announcing %s on port %d", printer.ServicePOS, port)
		}
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Geyim POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if announcer != nil {
		announcer.Shutdown()
	}
	sched.Stop(shutdownCtx)
	sessions.Close()
	stopRun()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository picks postgres, then sqlite, then the seeded in-memory store.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, []func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Println("repository: postgres")
		return pg, []func() error{pg.Close}, nil
	case cfg.SQLitePath != "":
		lite, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite %s: %w", cfg.SQLitePath, err)
		}
		log.Printf("repository: sqlite (%s)", cfg.SQLitePath)
		return lite, []func() error{lite.Close}, nil
	default:
		log.Println("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

func announcePort(cfg config.Config) (int, error) {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return 0, fmt.Errorf("invalid PORT %q: %w", cfg.Port, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid PORT %q: out of range", cfg.Port)
	}
	return port, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.LowStockScanSpec == "" {
		return fmt.Errorf("LOW_STOCK_SCAN_SPEC must not be empty")
	}
	return nil
}
