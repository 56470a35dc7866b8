package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

type AnatomicalEntityRepo interface {
	GetMetaByURI(ctx context.Context, tx *gorm.DB, uri string) (*types.AnatomicalEntityMeta, error)
	// RetypeMeta re-shapes a bare meta into the required subtype.
	// The delete-and-recreate pair runs in its own inner transaction.
	RetypeMeta(ctx context.Context, uri string, kind types.MetaKind) (*types.AnatomicalEntityMeta, error)
	GetSimpleByURI(ctx context.Context, tx *gorm.DB, uri string) (*types.AnatomicalEntity, error)
	GetIntersection(ctx context.Context, tx *gorm.DB, regionURI, layerURI string) (*types.AnatomicalEntity, error)
	GetOrCreateSimple(ctx context.Context, tx *gorm.DB, uri string) (*types.AnatomicalEntity, error)
	GetOrCreateIntersection(ctx context.Context, tx *gorm.DB, regionURI, layerURI string) (*types.AnatomicalEntity, error)
}

type anatomicalEntityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnatomicalEntityRepo(db *gorm.DB, baseLog *logger.Logger) AnatomicalEntityRepo {
	return &anatomicalEntityRepo{db: db, log: baseLog.With("repo", "AnatomicalEntityRepo")}
}

func (r *anatomicalEntityRepo) GetMetaByURI(ctx context.Context, tx *gorm.DB, uri string) (*types.AnatomicalEntityMeta, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var meta types.AnatomicalEntityMeta
	if err := transaction.WithContext(ctx).Where("ontology_uri = ?", uri).First(&meta).Error; err != nil {
		return nil, err
	}
	return &meta, nil
}

func (r *anatomicalEntityRepo) RetypeMeta(ctx context.Context, uri string, kind types.MetaKind) (*types.AnatomicalEntityMeta, error) {
	var out *types.AnatomicalEntityMeta
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meta types.AnatomicalEntityMeta
		if err := tx.Where("ontology_uri = ?", uri).First(&meta).Error; err != nil {
			return err
		}
		if meta.Kind == kind {
			out = &meta
			return nil
		}
		if meta.Kind != types.MetaKindBare {
			return fmt.Errorf("meta %s already typed as %s, cannot retype to %s", uri, meta.Kind, kind)
		}
		if err := tx.Delete(&meta).Error; err != nil {
			return err
		}
		fresh := types.AnatomicalEntityMeta{OntologyURI: meta.OntologyURI, Name: meta.Name, Kind: kind}
		if err := tx.Create(&fresh).Error; err != nil {
			return err
		}
		out = &fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug("retyped anatomical entity meta", "uri", uri, "kind", kind)
	return out, nil
}

func (r *anatomicalEntityRepo) GetSimpleByURI(ctx context.Context, tx *gorm.DB, uri string) (*types.AnatomicalEntity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var entity types.AnatomicalEntity
	err := transaction.WithContext(ctx).
		Joins("JOIN anatomical_entity_meta m ON m.id = anatomical_entity.simple_entity_id").
		Where("m.ontology_uri = ?", uri).
		Preload("SimpleEntity").
		First(&entity).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *anatomicalEntityRepo) GetIntersection(ctx context.Context, tx *gorm.DB, regionURI, layerURI string) (*types.AnatomicalEntity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var entity types.AnatomicalEntity
	err := transaction.WithContext(ctx).
		Joins("JOIN anatomical_entity_intersection i ON i.id = anatomical_entity.region_layer_id").
		Joins("JOIN anatomical_entity_meta region ON region.id = i.region_id").
		Joins("JOIN anatomical_entity_meta layer ON layer.id = i.layer_id").
		Where("region.ontology_uri = ? AND layer.ontology_uri = ?", regionURI, layerURI).
		Preload("RegionLayer.Region").
		Preload("RegionLayer.Layer").
		First(&entity).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *anatomicalEntityRepo) GetOrCreateSimple(ctx context.Context, tx *gorm.DB, uri string) (*types.AnatomicalEntity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	entity, err := r.GetSimpleByURI(ctx, transaction, uri)
	if err == nil {
		return entity, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	meta, err := r.GetMetaByURI(ctx, transaction, uri)
	if err != nil {
		return nil, err
	}
	fresh := types.AnatomicalEntity{SimpleEntityID: &meta.ID, SimpleEntity: meta}
	if err := transaction.WithContext(ctx).Create(&fresh).Error; err != nil {
		return nil, err
	}
	return &fresh, nil
}

func (r *anatomicalEntityRepo) GetOrCreateIntersection(ctx context.Context, tx *gorm.DB, regionURI, layerURI string) (*types.AnatomicalEntity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	entity, err := r.GetIntersection(ctx, transaction, regionURI, layerURI)
	if err == nil {
		return entity, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	region, err := r.GetMetaByURI(ctx, transaction, regionURI)
	if err != nil {
		return nil, err
	}
	layer, err := r.GetMetaByURI(ctx, transaction, layerURI)
	if err != nil {
		return nil, err
	}
	intersection := types.AnatomicalEntityIntersection{
		RegionID: region.ID,
		Region:   region,
		LayerID:  layer.ID,
		Layer:    layer,
	}
	if err := transaction.WithContext(ctx).Create(&intersection).Error; err != nil {
		return nil, err
	}
	fresh := types.AnatomicalEntity{RegionLayerID: &intersection.ID, RegionLayer: &intersection}
	if err := transaction.WithContext(ctx).Create(&fresh).Error; err != nil {
		return nil, err
	}
	return &fresh, nil
}
