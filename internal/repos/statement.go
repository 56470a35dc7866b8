package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

// viaOrderSentinel keeps reorders clear of the unique
// (statement, order) constraint while orders shift.
const viaOrderSentinel = 1000000

type StatementRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ConnectivityStatement, error)
	GetByReferenceURI(ctx context.Context, tx *gorm.DB, uri string) (*types.ConnectivityStatement, error)
	Create(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) (*types.ConnectivityStatement, error)
	Save(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error
	Delete(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error

	ReplaceOrigins(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, origins []types.AnatomicalEntity) error
	ReplaceSpecies(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, species []types.Specie) error
	ReplaceForwardConnections(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, targets []*types.ConnectivityStatement) error
	ReplaceVias(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, vias []types.Via) error
	ReplaceDestinations(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, destinations []types.Destination) error
	ReplaceProvenances(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, uris []string) error
	ReplaceExpertConsultants(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, consultants []types.ExpertConsultant) error
	ReplaceStatementAlerts(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, alerts []types.StatementAlert) error

	SetViaOrders(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, orders map[uuid.UUID]int) error

	ListExported(ctx context.Context, tx *gorm.DB) ([]*types.ConnectivityStatement, error)
	ListExportedByPopulation(ctx context.Context, tx *gorm.DB, populationID uuid.UUID) ([]*types.ConnectivityStatement, error)
	ForwardSources(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]*types.ConnectivityStatement, error)
}

type statementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStatementRepo(db *gorm.DB, baseLog *logger.Logger) StatementRepo {
	return &statementRepo{db: db, log: baseLog.With("repo", "StatementRepo")}
}

func (r *statementRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func preloadStatement(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Sentence").
		Preload("Origins.SimpleEntity").
		Preload("Origins.RegionLayer.Region").
		Preload("Origins.RegionLayer.Layer").
		Preload("Vias", func(db *gorm.DB) *gorm.DB { return db.Order("ord ASC") }).
		Preload("Vias.AnatomicalEntities.SimpleEntity").
		Preload("Vias.AnatomicalEntities.RegionLayer.Region").
		Preload("Vias.AnatomicalEntities.RegionLayer.Layer").
		Preload("Vias.FromEntities.SimpleEntity").
		Preload("Vias.FromEntities.RegionLayer.Region").
		Preload("Vias.FromEntities.RegionLayer.Layer").
		Preload("Destinations.AnatomicalEntities.SimpleEntity").
		Preload("Destinations.AnatomicalEntities.RegionLayer.Region").
		Preload("Destinations.AnatomicalEntities.RegionLayer.Layer").
		Preload("Destinations.FromEntities.SimpleEntity").
		Preload("Destinations.FromEntities.RegionLayer.Region").
		Preload("Destinations.FromEntities.RegionLayer.Layer").
		Preload("Species").
		Preload("Sex").
		Preload("Phenotype").
		Preload("ProjectionPhenotype").
		Preload("FunctionalCircuitRole").
		Preload("ForwardConnections").
		Preload("Provenances").
		Preload("Tags").
		Preload("StatementAlerts.AlertType").
		Preload("ExpertConsultants").
		Preload("Population")
}

func (r *statementRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ConnectivityStatement, error) {
	var statement types.ConnectivityStatement
	err := preloadStatement(r.tx(tx).WithContext(ctx)).
		Where("connectivity_statement.id = ?", id).
		First(&statement).Error
	if err != nil {
		return nil, err
	}
	return &statement, nil
}

// GetByReferenceURI resolves among non-deprecated statements only; a
// deprecated statement has released its claim on the URI.
func (r *statementRepo) GetByReferenceURI(ctx context.Context, tx *gorm.DB, uri string) (*types.ConnectivityStatement, error) {
	var statement types.ConnectivityStatement
	err := preloadStatement(r.tx(tx).WithContext(ctx)).
		Where("reference_uri = ? AND state <> ?", uri, types.CSStateDeprecated).
		First(&statement).Error
	if err != nil {
		return nil, err
	}
	return &statement, nil
}

func (r *statementRepo) Create(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) (*types.ConnectivityStatement, error) {
	if err := r.tx(tx).WithContext(ctx).Omit(
		"Origins", "Species", "ForwardConnections", "Tags",
	).Create(statement).Error; err != nil {
		return nil, err
	}
	return statement, nil
}

func (r *statementRepo) Save(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error {
	return r.tx(tx).WithContext(ctx).Omit(
		"Origins", "Species", "ForwardConnections", "Tags",
		"Vias", "Destinations", "Provenances", "Notes",
		"StatementAlerts", "ExpertConsultants",
	).Save(statement).Error
}

func (r *statementRepo) Delete(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error {
	return r.tx(tx).WithContext(ctx).Delete(statement).Error
}

func (r *statementRepo) ReplaceOrigins(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, origins []types.AnatomicalEntity) error {
	return r.tx(tx).WithContext(ctx).Model(statement).Association("Origins").Replace(origins)
}

func (r *statementRepo) ReplaceSpecies(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, species []types.Specie) error {
	return r.tx(tx).WithContext(ctx).Model(statement).Association("Species").Replace(species)
}

func (r *statementRepo) ReplaceForwardConnections(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, targets []*types.ConnectivityStatement) error {
	return r.tx(tx).WithContext(ctx).Model(statement).Association("ForwardConnections").Replace(targets)
}

func (r *statementRepo) ReplaceVias(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, vias []types.Via) error {
	transaction := r.tx(tx).WithContext(ctx)
	var existing []types.Via
	if err := transaction.Where("connectivity_statement_id = ?", statement.ID).Find(&existing).Error; err != nil {
		return err
	}
	for _, via := range existing {
		if err := transaction.Model(&via).Association("AnatomicalEntities").Clear(); err != nil {
			return err
		}
		if err := transaction.Model(&via).Association("FromEntities").Clear(); err != nil {
			return err
		}
	}
	if err := transaction.Where("connectivity_statement_id = ?", statement.ID).Delete(&types.Via{}).Error; err != nil {
		return err
	}
	for i := range vias {
		vias[i].ConnectivityStatementID = statement.ID
		if err := transaction.Create(&vias[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *statementRepo) ReplaceDestinations(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, destinations []types.Destination) error {
	transaction := r.tx(tx).WithContext(ctx)
	var existing []types.Destination
	if err := transaction.Where("connectivity_statement_id = ?", statement.ID).Find(&existing).Error; err != nil {
		return err
	}
	for _, destination := range existing {
		if err := transaction.Model(&destination).Association("AnatomicalEntities").Clear(); err != nil {
			return err
		}
		if err := transaction.Model(&destination).Association("FromEntities").Clear(); err != nil {
			return err
		}
	}
	if err := transaction.Where("connectivity_statement_id = ?", statement.ID).Delete(&types.Destination{}).Error; err != nil {
		return err
	}
	for i := range destinations {
		destinations[i].ConnectivityStatementID = statement.ID
		if err := transaction.Create(&destinations[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *statementRepo) ReplaceProvenances(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, uris []string) error {
	transaction := r.tx(tx).WithContext(ctx)
	if err := transaction.Where("connectivity_statement_id = ?", statement.ID).Delete(&types.Provenance{}).Error; err != nil {
		return err
	}
	for _, uri := range uris {
		provenance := types.Provenance{ConnectivityStatementID: statement.ID, URI: uri}
		if err := transaction.Create(&provenance).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *statementRepo) ReplaceExpertConsultants(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, consultants []types.ExpertConsultant) error {
	transaction := r.tx(tx).WithContext(ctx)
	if err := transaction.Where("connectivity_statement_id = ?", statement.ID).Delete(&types.ExpertConsultant{}).Error; err != nil {
		return err
	}
	for i := range consultants {
		consultants[i].ConnectivityStatementID = statement.ID
		if err := transaction.Create(&consultants[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *statementRepo) ReplaceStatementAlerts(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, alerts []types.StatementAlert) error {
	transaction := r.tx(tx).WithContext(ctx)
	if err := transaction.Where("connectivity_statement_id = ?", statement.ID).Delete(&types.StatementAlert{}).Error; err != nil {
		return err
	}
	for i := range alerts {
		alerts[i].ConnectivityStatementID = statement.ID
		if err := transaction.Create(&alerts[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// SetViaOrders applies a reordering in two sweeps through a sentinel
// range so the unique (statement, order) index never sees a collision.
func (r *statementRepo) SetViaOrders(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, orders map[uuid.UUID]int) error {
	transaction := r.tx(tx).WithContext(ctx)
	for id, order := range orders {
		err := transaction.Model(&types.Via{}).
			Where("id = ? AND connectivity_statement_id = ?", id, statement.ID).
			Update("ord", viaOrderSentinel+order).Error
		if err != nil {
			return err
		}
	}
	for id, order := range orders {
		err := transaction.Model(&types.Via{}).
			Where("id = ? AND connectivity_statement_id = ?", id, statement.ID).
			Update("ord", order).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// ListExported loads every exported statement with the full child
// graph needed to flatten it, ordered by seq.
func (r *statementRepo) ListExported(ctx context.Context, tx *gorm.DB) ([]*types.ConnectivityStatement, error) {
	var statements []*types.ConnectivityStatement
	err := preloadStatement(r.tx(tx).WithContext(ctx)).
		Preload("Notes").
		Where("state = ?", types.CSStateExported).
		Order("seq ASC").
		Find(&statements).Error
	if err != nil {
		return nil, err
	}
	return statements, nil
}

func (r *statementRepo) ListExportedByPopulation(ctx context.Context, tx *gorm.DB, populationID uuid.UUID) ([]*types.ConnectivityStatement, error) {
	var statements []*types.ConnectivityStatement
	err := r.tx(tx).WithContext(ctx).
		Where("population_id = ? AND has_statement_been_exported = ?", populationID, true).
		Order("seq ASC").
		Find(&statements).Error
	if err != nil {
		return nil, err
	}
	return statements, nil
}

// ForwardSources returns the statements whose forward connections
// include targetID (the inverse edge set used by invalidation).
func (r *statementRepo) ForwardSources(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]*types.ConnectivityStatement, error) {
	var statements []*types.ConnectivityStatement
	err := r.tx(tx).WithContext(ctx).
		Joins("JOIN forward_connection fc ON fc.source_id = connectivity_statement.id").
		Where("fc.target_id = ?", targetID).
		Find(&statements).Error
	if err != nil {
		return nil, err
	}
	return statements, nil
}
