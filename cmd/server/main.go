package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-immo/auth"
	"github.com/diewo77/go-immo/internal/config"
	"github.com/diewo77/go-immo/internal/db"
	"github.com/diewo77/go-immo/internal/inflight"
	"github.com/diewo77/go-immo/internal/models"
	"github.com/diewo77/go-immo/internal/policy"
	"github.com/diewo77/go-immo/internal/timeutil"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg := config.Load()

	if err := timeutil.SetLocation(cfg.App.Timezone); err != nil {
		log.Printf("Unknown APP_TIMEZONE %q, using UTC: %v", cfg.App.Timezone, err)
	}
	if cfg.App.SessionSecret == "" && !cfg.App.Dev {
		log.Fatalf("SESSION_SECRET is required outside dev mode")
	}
	auth.SetSecret(cfg.App.SessionSecret)

	dbConn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *migrateOnlyFlag {
		mode := cfg.App.Migrations
		if mode == config.MigrateOff {
			mode = config.MigrateAuto
		}
		if err := runMigrations(mode, cfg.Database, dbConn); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
		return
	}

	if *seedOnlyFlag {
		if err := seed(cfg, dbConn); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Println("Seeding completed successfully")
		return
	}

	if cfg.App.Migrations != config.MigrateOff {
		if err := runMigrations(cfg.App.Migrations, cfg.Database, dbConn); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Printf("Migrations completed (%s)", cfg.App.Migrations)
	}

	if err := seed(cfg, dbConn); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	// Sessions of deleted users are dropped
	auth.SetUserVerifier(func(ctx context.Context, uid uint) bool {
		var count int64
		dbConn.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Count(&count)
		return count > 0
	})

	guard, closeGuard := paymentGuard(cfg)
	defer closeGuard()

	routerCfg := policy.NewRouterConfig(dbConn, cfg, guard)
	appHandler := NewApp(dbConn, routerCfg, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      withLogging(appHandler),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s (dev=%v, tz=%s)", cfg.Server.Port, cfg.App.Dev, timeutil.Location())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped gracefully")
}

// runMigrations applies the schema. The SQL files target PostgreSQL, so
// sqlite always uses AutoMigrate.
func runMigrations(mode string, dbCfg config.DatabaseConfig, conn *gorm.DB) error {
	if mode == config.MigrateSQL && dbCfg.Driver != "sqlite" {
		return db.RunSQLMigrations("migrations", dbCfg.URL())
	}
	return db.Migrate(conn)
}

// seed creates permissions and profiles, the admin user when configured,
// and demo installments for that admin in dev mode.
func seed(cfg *config.Config, conn *gorm.DB) error {
	if err := db.Seed(conn); err != nil {
		return err
	}
	admin, err := db.SeedAdmin(conn, cfg.App.SeedAdminEmail, cfg.App.SeedAdminPass, cfg.App.AgencyName)
	if err != nil {
		return err
	}
	if admin != nil && cfg.App.Dev {
		return db.SeedDemo(conn, admin.ID, timeutil.Now())
	}
	return nil
}

// paymentGuard shares in-flight payments through redis when REDIS_ADDR is
// set, so several instances reject the same double submit.
func paymentGuard(cfg *config.Config) (inflight.Guard, func()) {
	if cfg.Redis.Addr == "" {
		return inflight.NewMemoryGuard(cfg.Schedule.InflightTTL), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis unreachable at %s: %v", cfg.Redis.Addr, err)
	}
	log.Printf("Payment guard: redis %s", cfg.Redis.Addr)
	return inflight.NewRedisGuard(rdb, cfg.Schedule.InflightTTL), func() {
		if err := rdb.Close(); err != nil {
			log.Printf("Closing redis: %v", err)
		}
	}
}

// withLogging adds request logging middleware.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
