package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/db"
	"github.com/neurocurate/composer/internal/observability"
	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
)

// app is the shared bootstrap for every command: logger, postgres,
// repos, tracing and metrics.
type app struct {
	log     *logger.Logger
	db      *gorm.DB
	metrics *observability.Metrics

	users         repos.UserRepo
	entities      repos.AnatomicalEntityRepo
	sentences     repos.SentenceRepo
	statements    repos.StatementRepo
	lookups       repos.LookupRepo
	notes         repos.NoteRepo
	populations   repos.PopulationRepo
	relationships repos.RelationshipRepo

	shutdownOTel func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "production"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	postgres, err := db.NewPostgresService(log)
	if err != nil {
		return nil, err
	}
	if err := postgres.AutoMigrateAll(); err != nil {
		return nil, err
	}
	gormDB := postgres.DB()

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "composer",
	})

	return &app{
		log:           log,
		db:            gormDB,
		metrics:       observability.NewMetrics(prometheus.NewRegistry()),
		users:         repos.NewUserRepo(gormDB, log),
		entities:      repos.NewAnatomicalEntityRepo(gormDB, log),
		sentences:     repos.NewSentenceRepo(gormDB, log),
		statements:    repos.NewStatementRepo(gormDB, log),
		lookups:       repos.NewLookupRepo(gormDB, log),
		notes:         repos.NewNoteRepo(gormDB, log),
		populations:   repos.NewPopulationRepo(gormDB, log),
		relationships: repos.NewRelationshipRepo(gormDB, log),
		shutdownOTel:  shutdown,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if a.shutdownOTel != nil {
		if err := a.shutdownOTel(ctx); err != nil {
			a.log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.log.Sync()
}
