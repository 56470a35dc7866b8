package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/db"
	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

type NoteRepo interface {
	Create(ctx context.Context, tx *gorm.DB, note *types.Note) error
}

type noteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNoteRepo(db *gorm.DB, baseLog *logger.Logger) NoteRepo {
	return &noteRepo{db: db, log: baseLog.With("repo", "NoteRepo")}
}

func (r *noteRepo) Create(ctx context.Context, tx *gorm.DB, note *types.Note) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(note).Error
}

type PopulationRepo interface {
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.PopulationSet, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, name string) (*types.PopulationSet, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.PopulationSet, error)
	Update(ctx context.Context, tx *gorm.DB, population *types.PopulationSet) error
}

type populationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPopulationRepo(db *gorm.DB, baseLog *logger.Logger) PopulationRepo {
	return &populationRepo{db: db, log: baseLog.With("repo", "PopulationRepo")}
}

func (r *populationRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *populationRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.PopulationSet, error) {
	var population types.PopulationSet
	if err := r.tx(tx).WithContext(ctx).Where("name = ?", name).First(&population).Error; err != nil {
		return nil, err
	}
	return &population, nil
}

func (r *populationRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, name string) (*types.PopulationSet, error) {
	transaction := r.tx(tx).WithContext(ctx)
	var population types.PopulationSet
	err := transaction.Where("name = ?", name).First(&population).Error
	if err == nil {
		return &population, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	population = types.PopulationSet{Name: name}
	if err := transaction.Create(&population).Error; err != nil {
		// A concurrent run may have created it between the lookup and
		// the insert.
		if db.IsUniqueViolation(err) {
			return r.GetByName(ctx, tx, name)
		}
		return nil, err
	}
	return &population, nil
}

func (r *populationRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.PopulationSet, error) {
	var populations []*types.PopulationSet
	if err := r.tx(tx).WithContext(ctx).Order("name ASC").Find(&populations).Error; err != nil {
		return nil, err
	}
	return populations, nil
}

func (r *populationRepo) Update(ctx context.Context, tx *gorm.DB, population *types.PopulationSet) error {
	return r.tx(tx).WithContext(ctx).Save(population).Error
}

type RelationshipRepo interface {
	List(ctx context.Context, tx *gorm.DB) ([]*types.Relationship, error)
	UpsertTriple(ctx context.Context, tx *gorm.DB, relationshipID uuid.UUID, name, uri string) (*types.Triple, error)
	BindTriple(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, triple *types.Triple) error
	UpsertStatementText(ctx context.Context, tx *gorm.DB, statementID, relationshipID uuid.UUID, text string) error
	ReplaceEntityRelations(ctx context.Context, tx *gorm.DB, statementID, relationshipID uuid.UUID, entityIDs []uuid.UUID) error
}

type relationshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipRepo {
	return &relationshipRepo{db: db, log: baseLog.With("repo", "RelationshipRepo")}
}

func (r *relationshipRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *relationshipRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Relationship, error) {
	var relationships []*types.Relationship
	if err := r.tx(tx).WithContext(ctx).Find(&relationships).Error; err != nil {
		return nil, err
	}
	return relationships, nil
}

func (r *relationshipRepo) UpsertTriple(ctx context.Context, tx *gorm.DB, relationshipID uuid.UUID, name, uri string) (*types.Triple, error) {
	transaction := r.tx(tx).WithContext(ctx)
	var triple types.Triple
	err := transaction.Where("relationship_id = ? AND uri = ?", relationshipID, uri).First(&triple).Error
	if err == nil {
		if triple.Name != name {
			triple.Name = name
			if err := transaction.Save(&triple).Error; err != nil {
				return nil, err
			}
		}
		return &triple, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	triple = types.Triple{RelationshipID: relationshipID, Name: name, URI: uri}
	if err := transaction.Create(&triple).Error; err != nil {
		return nil, err
	}
	return &triple, nil
}

func (r *relationshipRepo) BindTriple(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, triple *types.Triple) error {
	return r.tx(tx).WithContext(ctx).Model(triple).Association("Statements").Append(statement)
}

func (r *relationshipRepo) UpsertStatementText(ctx context.Context, tx *gorm.DB, statementID, relationshipID uuid.UUID, text string) error {
	transaction := r.tx(tx).WithContext(ctx)
	var existing types.StatementText
	err := transaction.Where("connectivity_statement_id = ? AND relationship_id = ?", statementID, relationshipID).First(&existing).Error
	if err == nil {
		existing.Text = text
		return transaction.Save(&existing).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	fresh := types.StatementText{
		ConnectivityStatementID: statementID,
		RelationshipID:          relationshipID,
		Text:                    text,
	}
	return transaction.Create(&fresh).Error
}

func (r *relationshipRepo) ReplaceEntityRelations(ctx context.Context, tx *gorm.DB, statementID, relationshipID uuid.UUID, entityIDs []uuid.UUID) error {
	transaction := r.tx(tx).WithContext(ctx)
	err := transaction.
		Where("connectivity_statement_id = ? AND relationship_id = ?", statementID, relationshipID).
		Delete(&types.StatementEntityRelation{}).Error
	if err != nil {
		return err
	}
	for _, entityID := range entityIDs {
		relation := types.StatementEntityRelation{
			ConnectivityStatementID: statementID,
			RelationshipID:          relationshipID,
			AnatomicalEntityID:      entityID,
		}
		if err := transaction.Create(&relation).Error; err != nil {
			return err
		}
	}
	return nil
}
