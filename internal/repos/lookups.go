package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

// LookupRepo resolves the small controlled vocabularies: sex, species,
// phenotypes, circuit roles, tags, alert types.
type LookupRepo interface {
	GetSexByURI(ctx context.Context, tx *gorm.DB, uri string) (*types.Sex, error)
	GetSpecieByURI(ctx context.Context, tx *gorm.DB, uri string) (*types.Specie, error)
	GetOrCreateSpecie(ctx context.Context, tx *gorm.DB, uri, name string) (*types.Specie, error)
	GetOrCreatePhenotype(ctx context.Context, tx *gorm.DB, name string) (*types.Phenotype, error)
	GetOrCreateProjectionPhenotype(ctx context.Context, tx *gorm.DB, name string) (*types.ProjectionPhenotype, error)
	GetOrCreateFunctionalCircuitRole(ctx context.Context, tx *gorm.DB, name string) (*types.FunctionalCircuitRole, error)
	GetOrCreateAlertType(ctx context.Context, tx *gorm.DB, uri string) (*types.AlertType, error)
	ListExportableTags(ctx context.Context, tx *gorm.DB) ([]types.Tag, error)
}

type lookupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLookupRepo(db *gorm.DB, baseLog *logger.Logger) LookupRepo {
	return &lookupRepo{db: db, log: baseLog.With("repo", "LookupRepo")}
}

func (r *lookupRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *lookupRepo) GetSexByURI(ctx context.Context, tx *gorm.DB, uri string) (*types.Sex, error) {
	var sex types.Sex
	if err := r.tx(tx).WithContext(ctx).Where("ontology_uri = ?", uri).First(&sex).Error; err != nil {
		return nil, err
	}
	return &sex, nil
}

func (r *lookupRepo) GetSpecieByURI(ctx context.Context, tx *gorm.DB, uri string) (*types.Specie, error) {
	var specie types.Specie
	if err := r.tx(tx).WithContext(ctx).Where("ontology_uri = ?", uri).First(&specie).Error; err != nil {
		return nil, err
	}
	return &specie, nil
}

func (r *lookupRepo) GetOrCreateSpecie(ctx context.Context, tx *gorm.DB, uri, name string) (*types.Specie, error) {
	transaction := r.tx(tx).WithContext(ctx)
	var specie types.Specie
	err := transaction.Where("ontology_uri = ?", uri).First(&specie).Error
	if err == nil {
		return &specie, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	specie = types.Specie{OntologyURI: uri, Name: name}
	if err := transaction.Create(&specie).Error; err != nil {
		return nil, err
	}
	return &specie, nil
}

func (r *lookupRepo) GetOrCreatePhenotype(ctx context.Context, tx *gorm.DB, name string) (*types.Phenotype, error) {
	transaction := r.tx(tx).WithContext(ctx)
	var phenotype types.Phenotype
	err := transaction.Where("name = ?", name).First(&phenotype).Error
	if err == nil {
		return &phenotype, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	phenotype = types.Phenotype{Name: name}
	if err := transaction.Create(&phenotype).Error; err != nil {
		return nil, err
	}
	return &phenotype, nil
}

func (r *lookupRepo) GetOrCreateProjectionPhenotype(ctx context.Context, tx *gorm.DB, name string) (*types.ProjectionPhenotype, error) {
	transaction := r.tx(tx).WithContext(ctx)
	var phenotype types.ProjectionPhenotype
	err := transaction.Where("name = ?", name).First(&phenotype).Error
	if err == nil {
		return &phenotype, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	phenotype = types.ProjectionPhenotype{Name: name}
	if err := transaction.Create(&phenotype).Error; err != nil {
		return nil, err
	}
	return &phenotype, nil
}

func (r *lookupRepo) GetOrCreateFunctionalCircuitRole(ctx context.Context, tx *gorm.DB, name string) (*types.FunctionalCircuitRole, error) {
	transaction := r.tx(tx).WithContext(ctx)
	var role types.FunctionalCircuitRole
	err := transaction.Where("name = ?", name).First(&role).Error
	if err == nil {
		return &role, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	role = types.FunctionalCircuitRole{Name: name}
	if err := transaction.Create(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *lookupRepo) GetOrCreateAlertType(ctx context.Context, tx *gorm.DB, uri string) (*types.AlertType, error) {
	transaction := r.tx(tx).WithContext(ctx)
	var alertType types.AlertType
	err := transaction.Where("uri = ?", uri).First(&alertType).Error
	if err == nil {
		return &alertType, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	alertType = types.AlertType{URI: uri, Name: uri}
	if err := transaction.Create(&alertType).Error; err != nil {
		return nil, err
	}
	return &alertType, nil
}

func (r *lookupRepo) ListExportableTags(ctx context.Context, tx *gorm.DB) ([]types.Tag, error) {
	var tags []types.Tag
	err := r.tx(tx).WithContext(ctx).
		Where("exportable = ?", true).
		Order("name ASC").
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}
