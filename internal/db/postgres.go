package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/envutil"
	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := envutil.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := envutil.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := envutil.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := envutil.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := envutil.GetEnv("POSTGRES_NAME", "composer", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &PostgresService{db: gormDB, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.AnatomicalEntityMeta{},
		&types.AnatomicalEntityIntersection{},
		&types.AnatomicalEntity{},
		&types.Synonym{},
		&types.Sex{},
		&types.Specie{},
		&types.Phenotype{},
		&types.ProjectionPhenotype{},
		&types.FunctionalCircuitRole{},
		&types.Tag{},
		&types.AlertType{},
		&types.PopulationSet{},
		&types.Sentence{},
		&types.ConnectivityStatement{},
		&types.Via{},
		&types.Destination{},
		&types.Provenance{},
		&types.Note{},
		&types.StatementAlert{},
		&types.ExpertConsultant{},
		&types.Relationship{},
		&types.Triple{},
		&types.StatementText{},
		&types.StatementEntityRelation{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	// reference_uri uniqueness is released in the deprecated state.
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_statement_reference_uri_active
		ON "connectivity_statement" ("reference_uri")
		WHERE "state" <> 'deprecated' AND "reference_uri" <> ''
	`).Error; err != nil {
		return fmt.Errorf("create reference_uri partial index: %w", err)
	}

	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
