// Command server runs the handle backend HTTP API.
//
// Startup order:
//  1. Load .env (best effort) and environment configuration
//  2. Configure zerolog (level, optional pretty console output)
//  3. Open SQLite, migrate schema, seed the reserved-handle registry
//  4. Optionally connect the Redis rename-event publisher
//  5. Optionally configure OpenTelemetry tracing
//  6. Serve HTTP with graceful shutdown on SIGINT/SIGTERM
//
// The -backfill flag runs the one-shot handle assignment pass for profiles
// that predate handles and exits instead of serving.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/parfive/go-handle-backend/internal/config"
	"github.com/parfive/go-handle-backend/internal/domain"
	"github.com/parfive/go-handle-backend/internal/events"
	httpapi "github.com/parfive/go-handle-backend/internal/http"
	"github.com/parfive/go-handle-backend/internal/observability"
	"github.com/parfive/go-handle-backend/internal/repo"
	"github.com/parfive/go-handle-backend/internal/services"
	"github.com/parfive/go-handle-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	backfill := flag.Bool("backfill", false, "assign handles to profiles missing one, then exit")
	flag.Parse()

	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting handle backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}
	if err := seedReserved(ctx, db, cfg.ReservedPath); err != nil {
		log.Fatal().Err(err).Msg("seed reserved handles")
	}

	if *backfill {
		svc := &services.BackfillService{DB: db, BatchSize: cfg.BackfillBatchSize}
		n, err := svc.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("backfill failed")
		}
		log.Info().Int("assigned", n).Msg("backfill complete")
		return
	}

	// Rename events are optional; without Redis the service still renames,
	// it just tells nobody.
	var pub services.RenamePublisher
	if cfg.RedisURL != "" {
		rp, err := events.NewRedisPublisher(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer func() { _ = rp.Close() }()
		pub = rp
		log.Info().Str("channel", cfg.RedisChannel).Msg("rename event publishing enabled")
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("configure tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, pub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http listen")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("http server started")

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	} else {
		log.Info().Msg("http server stopped")
	}
}

// seedReserved loads the built-in reserved registry plus, when path is
// non-empty, a newline-delimited file of extra reserved handles ('#' starts
// a comment). Seeding is idempotent.
func seedReserved(ctx context.Context, db *gorm.DB, path string) error {
	entries := repo.DefaultReservedHandles()
	if path != "" {
		extra, err := readReservedFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, extra...)
	}
	return repo.SeedReservedHandles(ctx, db, entries)
}

// readReservedFile parses one reserved handle per line, skipping blanks and
// '#' comments.
func readReservedFile(path string) ([]domain.ReservedHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []domain.ReservedHandle
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, domain.ReservedHandle{Handle: line, Reason: "operator reserved"})
	}
	return out, sc.Err()
}
