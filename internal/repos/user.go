package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

type UserRepo interface {
	GetByLogin(ctx context.Context, tx *gorm.DB, login string) (*types.User, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, login string, isStaff bool) (*types.User, error)
	System(ctx context.Context, tx *gorm.DB) (*types.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return &userRepo{db: db, log: baseLog.With("repo", "UserRepo")}
}

func (r *userRepo) GetByLogin(ctx context.Context, tx *gorm.DB, login string) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var user types.User
	if err := transaction.WithContext(ctx).Where("login = ?", login).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, login string, isStaff bool) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var user types.User
	err := transaction.WithContext(ctx).Where("login = ?", login).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	user = types.User{Login: login, IsStaff: isStaff}
	if err := transaction.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// System returns the privileged principal used by ingestion, creating
// it on first use.
func (r *userRepo) System(ctx context.Context, tx *gorm.DB) (*types.User, error) {
	return r.GetOrCreate(ctx, tx, types.SystemUserLogin, true)
}
