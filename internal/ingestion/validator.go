package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/neurondm"
	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
)

// Validator checks each neuron against the catalog before any write
// happens. Failures accumulate in the neuron's ValidationErrors bag;
// the statement is still persisted, then invalidated. The only store
// write the validator may perform is the meta retype, which runs in
// its own inner transaction.
type Validator struct {
	entities   repos.AnatomicalEntityRepo
	lookups    repos.LookupRepo
	statements repos.StatementRepo
	cache      *gocache.Cache
	log        *logger.Logger
}

func NewValidator(entities repos.AnatomicalEntityRepo, lookups repos.LookupRepo, statements repos.StatementRepo, baseLog *logger.Logger) *Validator {
	return &Validator{
		entities:   entities,
		lookups:    lookups,
		statements: statements,
		cache:      gocache.New(10*time.Minute, 20*time.Minute),
		log:        baseLog.With("component", "Validator"),
	}
}

// ValidateBatch validates every neuron in input order. Forward
// connections may resolve against other members of the same batch.
func (v *Validator) ValidateBatch(ctx context.Context, neurons []*neurondm.Neuron, opts Options) []Anomaly {
	batchIDs := make(map[string]struct{}, len(neurons))
	for _, neuron := range neurons {
		batchIDs[neuron.ID] = struct{}{}
	}

	var anomalies []Anomaly
	for _, neuron := range neurons {
		anomalies = append(anomalies, v.validate(ctx, neuron, batchIDs, opts)...)
	}
	return anomalies
}

func (v *Validator) validate(ctx context.Context, neuron *neurondm.Neuron, batchIDs map[string]struct{}, opts Options) []Anomaly {
	var anomalies []Anomaly
	errs := &neuron.ValidationErrors

	if neuron.Origin != nil {
		for _, ref := range neuron.Origin.Entities {
			v.checkEntity(ctx, ref, errs, opts.UpdateAnatomicalEntities)
		}
	}
	for _, via := range neuron.Vias {
		for _, ref := range via.Entities {
			v.checkEntity(ctx, ref, errs, opts.UpdateAnatomicalEntities)
		}
		for _, ref := range via.FromEntities {
			v.checkEntity(ctx, ref, errs, opts.UpdateAnatomicalEntities)
		}
	}
	for _, destination := range neuron.Destinations {
		for _, ref := range destination.Entities {
			v.checkEntity(ctx, ref, errs, opts.UpdateAnatomicalEntities)
		}
		for _, ref := range destination.FromEntities {
			v.checkEntity(ctx, ref, errs, opts.UpdateAnatomicalEntities)
		}
	}

	if len(neuron.Sex) > 1 {
		anomalies = append(anomalies, warningAnomaly(neuron.ID, "",
			fmt.Sprintf("multiple sex URIs supplied (%d); using the first", len(neuron.Sex))))
	}
	if len(neuron.Sex) > 0 {
		if _, err := v.lookups.GetSexByURI(ctx, nil, neuron.Sex[0]); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				anomalies = append(anomalies, errorAnomaly(neuron.ID, neuron.Sex[0], "sex lookup failed: "+err.Error()))
			}
			errs.AddSex(neuron.Sex[0])
		}
	}

	for _, uri := range neuron.Species {
		if _, err := v.lookups.GetSpecieByURI(ctx, nil, uri); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				anomalies = append(anomalies, errorAnomaly(neuron.ID, uri, "species lookup failed: "+err.Error()))
			}
			errs.AddSpecie(uri)
		}
	}

	for _, uri := range neuron.ForwardConnection {
		if _, inBatch := batchIDs[uri]; inBatch {
			continue
		}
		if _, err := v.statements.GetByReferenceURI(ctx, nil, uri); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				anomalies = append(anomalies, errorAnomaly(neuron.ID, uri, "forward connection lookup failed: "+err.Error()))
			}
			errs.AddForwardConnection(uri)
		}
	}

	if errs.HasErrors() {
		v.log.Debug("neuron failed validation", "neuron", neuron.ID)
	}
	return anomalies
}

// checkEntity confirms the referenced entity exists in the catalog. A
// region-layer pair additionally requires both metas to carry the
// matching subtype; bare metas are upgraded in place only when update
// is set.
func (v *Validator) checkEntity(ctx context.Context, ref neurondm.EntityRef, errs *neurondm.ValidationErrors, update bool) {
	if ref.RegionLayer != nil {
		v.requireTyped(ctx, ref.RegionLayer.Region, types.MetaKindRegion, errs, update)
		v.requireTyped(ctx, ref.RegionLayer.Layer, types.MetaKindLayer, errs, update)
		return
	}
	if _, ok := v.metaByURI(ctx, ref.URI); !ok {
		errs.AddEntity(ref.URI)
	}
}

func (v *Validator) requireTyped(ctx context.Context, uri string, kind types.MetaKind, errs *neurondm.ValidationErrors, update bool) {
	meta, ok := v.metaByURI(ctx, uri)
	if !ok {
		errs.AddEntity(uri)
		return
	}
	if meta.Kind == kind {
		return
	}
	if meta.Kind == types.MetaKindBare && update {
		retyped, err := v.entities.RetypeMeta(ctx, uri, kind)
		if err != nil {
			v.log.Warn("meta retype failed", "uri", uri, "kind", kind, "error", err)
			errs.AddEntity(uri)
			return
		}
		v.cache.Set(metaCacheKey(uri), retyped, gocache.DefaultExpiration)
		return
	}
	errs.AddEntity(uri)
}

func (v *Validator) metaByURI(ctx context.Context, uri string) (*types.AnatomicalEntityMeta, bool) {
	key := metaCacheKey(uri)
	if cached, found := v.cache.Get(key); found {
		meta, ok := cached.(*types.AnatomicalEntityMeta)
		return meta, ok && meta != nil
	}
	meta, err := v.entities.GetMetaByURI(ctx, nil, uri)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			v.log.Warn("meta lookup failed", "uri", uri, "error", err)
			return nil, false
		}
		// Negative entries are cached too; the same missing URI tends
		// to appear across many neurons of a batch.
		v.cache.Set(key, (*types.AnatomicalEntityMeta)(nil), gocache.DefaultExpiration)
		return nil, false
	}
	v.cache.Set(key, meta, gocache.DefaultExpiration)
	return meta, true
}

func metaCacheKey(uri string) string { return "meta:" + uri }
