package workflow

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

// Transition names for the statement machine.
const (
	TransitionDraft          = "draft"
	TransitionComposeNow     = "compose_now"
	TransitionInProgress     = "in_progress"
	TransitionToBeReviewed   = "to_be_reviewed"
	TransitionRejected       = "rejected"
	TransitionRevise         = "revise"
	TransitionNPOApproved    = "npo_approved"
	TransitionExported       = "exported"
	TransitionSystemExported = "system_exported"
	TransitionInvalid        = "invalid"
)

type statementGuard func(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error
type statementPermission func(statement *types.ConnectivityStatement, user *types.User) bool
type statementSideEffect func(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, user *types.User) error

type statementTransition struct {
	name       string
	sources    []types.CSState
	target     types.CSState
	guard      statementGuard
	permission statementPermission
	sideEffect statementSideEffect
}

// StatementMachine drives statement state changes. Do mutates the
// in-memory statement only; persisting it is the caller's job, inside
// the enclosing transaction.
type StatementMachine struct {
	log         *logger.Logger
	transitions []statementTransition
}

func anyUser(_ *types.ConnectivityStatement, user *types.User) bool {
	return user != nil
}

// Leaving an approved or exported state needs a staff curator (or the
// system principal).
func staffFromApproved(statement *types.ConnectivityStatement, user *types.User) bool {
	if user == nil {
		return false
	}
	if statement.State == types.CSStateNPOApproved || statement.State == types.CSStateExported {
		return user.IsStaff || user.IsSystem()
	}
	return true
}

func systemOnly(_ *types.ConnectivityStatement, user *types.User) bool {
	return user.IsSystem()
}

func NewStatementMachine(baseLog *logger.Logger) *StatementMachine {
	m := &StatementMachine{log: baseLog.With("machine", "StatementMachine")}

	anyNonDeprecated := []types.CSState{
		types.CSStateDraft, types.CSStateComposeNow, types.CSStateInProgress,
		types.CSStateToBeReviewed, types.CSStateRevise, types.CSStateRejected,
		types.CSStateNPOApproved, types.CSStateExported, types.CSStateInvalid,
	}

	m.transitions = []statementTransition{
		{
			name:       TransitionDraft,
			sources:    anyNonDeprecated,
			target:     types.CSStateDraft,
			permission: anyUser,
		},
		{
			name: TransitionComposeNow,
			sources: []types.CSState{
				types.CSStateDraft, types.CSStateInProgress, types.CSStateInvalid,
				types.CSStateNPOApproved, types.CSStateExported,
			},
			target:     types.CSStateComposeNow,
			permission: staffFromApproved,
		},
		{
			name: TransitionInProgress,
			sources: []types.CSState{
				types.CSStateComposeNow, types.CSStateToBeReviewed, types.CSStateRevise,
			},
			target:     types.CSStateInProgress,
			permission: anyUser,
		},
		{
			name:       TransitionToBeReviewed,
			sources:    []types.CSState{types.CSStateInProgress, types.CSStateRejected},
			target:     types.CSStateToBeReviewed,
			guard:      guardReviewable,
			permission: anyUser,
		},
		{
			name:       TransitionRejected,
			sources:    []types.CSState{types.CSStateToBeReviewed},
			target:     types.CSStateRejected,
			permission: anyUser,
		},
		{
			name:       TransitionRevise,
			sources:    []types.CSState{types.CSStateToBeReviewed},
			target:     types.CSStateRevise,
			permission: anyUser,
		},
		{
			name:       TransitionNPOApproved,
			sources:    []types.CSState{types.CSStateToBeReviewed},
			target:     types.CSStateNPOApproved,
			guard:      guardForwardConnections,
			permission: anyUser,
		},
		{
			name:       TransitionExported,
			sources:    []types.CSState{types.CSStateNPOApproved, types.CSStateInvalid},
			target:     types.CSStateExported,
			guard:      guardExportable,
			permission: anyUser,
			sideEffect: exportSideEffect,
		},
		{
			// Privileged path used during ingestion with an explicit
			// population filter; reaches EXPORTED over any workflow
			// state.
			name:       TransitionSystemExported,
			sources:    anyNonDeprecated,
			target:     types.CSStateExported,
			guard:      guardExportable,
			permission: systemOnly,
			sideEffect: exportSideEffect,
		},
		{
			name:       TransitionInvalid,
			sources:    anyNonDeprecated,
			target:     types.CSStateInvalid,
			permission: anyUser,
			sideEffect: func(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, user *types.User) error {
				// Invalid statements are always soft-deleted later.
				statement.HasStatementBeenExported = true
				return nil
			},
		},
	}
	return m
}

// Can reports whether the named transition is structurally available
// from the statement's current state for the given user. Guards are
// not evaluated.
func (m *StatementMachine) Can(name string, statement *types.ConnectivityStatement, user *types.User) bool {
	transition := m.find(name)
	if transition == nil {
		return false
	}
	if !containsState(transition.sources, statement.State) {
		return false
	}
	if user == nil {
		return false
	}
	return transition.permission(statement, user)
}

// Do executes the named transition: permission, guard, side effect,
// then the state change on the in-memory statement.
func (m *StatementMachine) Do(ctx context.Context, tx *gorm.DB, name string, statement *types.ConnectivityStatement, user *types.User) error {
	transition := m.find(name)
	if transition == nil {
		return fmt.Errorf("%w: unknown transition %s", ErrTransitionNotAllowed, name)
	}
	if !containsState(transition.sources, statement.State) {
		return notAllowedErr(name, string(statement.State))
	}
	if user == nil {
		return ErrUserRequired
	}
	if !transition.permission(statement, user) {
		return fmt.Errorf("%w: %s denied for user %s", ErrTransitionNotAllowed, name, user.Login)
	}
	if transition.guard != nil {
		if err := transition.guard(ctx, tx, statement); err != nil {
			return conditionErr(name, err)
		}
	}
	if transition.sideEffect != nil {
		if err := transition.sideEffect(ctx, tx, statement, user); err != nil {
			return err
		}
	}
	m.log.Debug("statement transition", "statement_id", statement.ID, "from", statement.State, "to", transition.target, "user", user.Login)
	statement.State = transition.target
	return nil
}

// Delete soft-deletes a statement that has ever been exported
// (DEPRECATED keeps the record and releases its reference URI) and
// hard-deletes one that has not. Deprecation requires a user.
func (m *StatementMachine) Delete(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, user *types.User) error {
	if statement.HasStatementBeenExported {
		if user == nil {
			return fmt.Errorf("%w to deprecate statement %s", ErrUserRequired, statement.ID)
		}
		statement.State = types.CSStateDeprecated
		return tx.WithContext(ctx).Model(statement).Update("state", types.CSStateDeprecated).Error
	}
	return tx.WithContext(ctx).Delete(statement).Error
}

func (m *StatementMachine) find(name string) *statementTransition {
	for i := range m.transitions {
		if m.transitions[i].name == name {
			return &m.transitions[i]
		}
	}
	return nil
}

func containsState(states []types.CSState, state types.CSState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

// guardReviewable requires the statement to be structurally complete
// before review: origins, destinations, phenotype, sex, species and
// provenances.
func guardReviewable(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error {
	var missing []string
	if len(statement.Origins) == 0 {
		missing = append(missing, "origins")
	}
	if len(statement.Destinations) == 0 {
		missing = append(missing, "destinations")
	}
	if statement.PhenotypeID == nil {
		missing = append(missing, "phenotype")
	}
	if statement.SexID == nil {
		missing = append(missing, "sex")
	}
	if len(statement.Species) == 0 {
		missing = append(missing, "species")
	}
	if len(statement.Provenances) == 0 {
		missing = append(missing, "provenances")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %v", missing)
	}
	return nil
}

// guardForwardConnections requires every forward target to have an
// origin matching some destination entity of this statement.
func guardForwardConnections(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error {
	if len(statement.ForwardConnections) == 0 {
		return nil
	}

	destinationKeys := map[string]struct{}{}
	for _, destination := range statement.Destinations {
		for i := range destination.AnatomicalEntities {
			destinationKeys[destination.AnatomicalEntities[i].IdentifierKey()] = struct{}{}
		}
	}

	for _, target := range statement.ForwardConnections {
		origins := target.Origins
		if len(origins) == 0 && tx != nil {
			err := tx.WithContext(ctx).
				Joins("JOIN connectivity_statement_origin cso ON cso.anatomical_entity_id = anatomical_entity.id").
				Where("cso.connectivity_statement_id = ?", target.ID).
				Preload("SimpleEntity").
				Preload("RegionLayer.Region").
				Preload("RegionLayer.Layer").
				Find(&origins).Error
			if err != nil {
				return fmt.Errorf("load origins of forward connection %s: %v", target.ID, err)
			}
		}
		matched := false
		for i := range origins {
			if _, ok := destinationKeys[origins[i].IdentifierKey()]; ok {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("forward connection %s has no origin among destinations", target.ID)
		}
	}
	return nil
}

func guardExportable(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error {
	if statement.PopulationID == nil {
		return errors.New("population not set")
	}
	return guardForwardConnections(ctx, tx, statement)
}

// exportSideEffect assigns the population index, curie and reference
// URI exactly once, the first time a statement is exported.
func exportSideEffect(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, user *types.User) error {
	if statement.HasStatementBeenExported {
		return nil
	}

	var population types.PopulationSet
	if err := tx.WithContext(ctx).First(&population, "id = ?", statement.PopulationID).Error; err != nil {
		return fmt.Errorf("load population for export: %w", err)
	}
	population.LastUsedIndex++
	if err := tx.WithContext(ctx).Save(&population).Error; err != nil {
		return fmt.Errorf("bump population index: %w", err)
	}

	index := population.LastUsedIndex
	statement.PopulationIndex = &index
	statement.Population = &population
	if statement.CurieID == "" {
		statement.CurieID = types.ExportedCurie(population.Name, index)
	}
	if statement.ReferenceURI == "" {
		statement.ReferenceURI = types.ExportedReferenceURI(population.Name, index)
	}
	statement.HasStatementBeenExported = true
	return nil
}
