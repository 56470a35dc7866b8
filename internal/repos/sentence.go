package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

type SentenceRepo interface {
	GetByDOI(ctx context.Context, tx *gorm.DB, doi string) (*types.Sentence, error)
	Create(ctx context.Context, tx *gorm.DB, sentence *types.Sentence) (*types.Sentence, error)
	Update(ctx context.Context, tx *gorm.DB, sentence *types.Sentence) error
	StatementsInState(ctx context.Context, tx *gorm.DB, sentence *types.Sentence, state types.CSState) ([]*types.ConnectivityStatement, error)
}

type sentenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSentenceRepo(db *gorm.DB, baseLog *logger.Logger) SentenceRepo {
	return &sentenceRepo{db: db, log: baseLog.With("repo", "SentenceRepo")}
}

func (r *sentenceRepo) GetByDOI(ctx context.Context, tx *gorm.DB, doi string) (*types.Sentence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var sentence types.Sentence
	if err := transaction.WithContext(ctx).Where("doi = ?", doi).First(&sentence).Error; err != nil {
		return nil, err
	}
	return &sentence, nil
}

func (r *sentenceRepo) Create(ctx context.Context, tx *gorm.DB, sentence *types.Sentence) (*types.Sentence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(sentence).Error; err != nil {
		return nil, err
	}
	return sentence, nil
}

func (r *sentenceRepo) Update(ctx context.Context, tx *gorm.DB, sentence *types.Sentence) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(sentence).Error
}

func (r *sentenceRepo) StatementsInState(ctx context.Context, tx *gorm.DB, sentence *types.Sentence, state types.CSState) ([]*types.ConnectivityStatement, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var statements []*types.ConnectivityStatement
	err := transaction.WithContext(ctx).
		Where("sentence_id = ? AND state = ?", sentence.ID, state).
		Find(&statements).Error
	if err != nil {
		return nil, err
	}
	return statements, nil
}
