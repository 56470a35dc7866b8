package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
	"github.com/neurocurate/composer/internal/workflow"
)

// Invalidator propagates invalidity upstream: any statement whose
// forward connection turned invalid is itself invalid, transitively.
type Invalidator struct {
	statements repos.StatementRepo
	notes      repos.NoteRepo
	users      repos.UserRepo
	machine    *workflow.StatementMachine
	log        *logger.Logger
}

func NewInvalidator(statements repos.StatementRepo, notes repos.NoteRepo, users repos.UserRepo, machine *workflow.StatementMachine, baseLog *logger.Logger) *Invalidator {
	return &Invalidator{
		statements: statements,
		notes:      notes,
		users:      users,
		machine:    machine,
		log:        baseLog.With("component", "Invalidator"),
	}
}

// Cascade runs a breadth-first walk over the inverse forward-connection
// edges starting from the seed set and returns the statements newly
// marked invalid. Already-invalid statements reached by the walk only
// receive an explanatory note.
func (inv *Invalidator) Cascade(ctx context.Context, tx *gorm.DB, seeds []*types.ConnectivityStatement) ([]*types.ConnectivityStatement, error) {
	system, err := inv.users.System(ctx, tx)
	if err != nil {
		return nil, err
	}

	cause := map[uuid.UUID]string{}
	visited := map[uuid.UUID]struct{}{}
	queue := make([]*types.ConnectivityStatement, 0, len(seeds))
	for _, seed := range seeds {
		cause[seed.ID] = fmt.Sprintf("statement %s is invalid", seed.ID)
		visited[seed.ID] = struct{}{}
		queue = append(queue, seed)
	}

	var newlyInvalid []*types.ConnectivityStatement
	for len(queue) > 0 {
		target := queue[0]
		queue = queue[1:]

		sources, err := inv.statements.ForwardSources(ctx, tx, target.ID)
		if err != nil {
			return nil, fmt.Errorf("load forward sources of %s: %w", target.ID, err)
		}
		for _, source := range sources {
			if _, seen := visited[source.ID]; seen {
				continue
			}
			visited[source.ID] = struct{}{}

			// "statement A is invalid because its forward connection B
			// is invalid because its forward connection C is invalid".
			tail := cause[target.ID][len(fmt.Sprintf("statement %s ", target.ID)):]
			message := fmt.Sprintf("statement %s is invalid because its forward connection %s %s", source.ID, target.ID, tail)
			cause[source.ID] = message

			if source.State != types.CSStateInvalid {
				if err := inv.machine.Do(ctx, tx, workflow.TransitionInvalid, source, system); err != nil {
					return nil, fmt.Errorf("invalidate statement %s: %w", source.ID, err)
				}
				updates := map[string]any{
					"state":                       source.State,
					"has_statement_been_exported": source.HasStatementBeenExported,
				}
				if err := tx.WithContext(ctx).Model(source).Updates(updates).Error; err != nil {
					return nil, err
				}
				newlyInvalid = append(newlyInvalid, source)
				inv.log.Info("statement invalidated by cascade", "statement_id", source.ID, "via", target.ID)
			}

			note := &types.Note{
				UserID:                  &system.ID,
				Type:                    types.NoteTypePlain,
				Text:                    message,
				ConnectivityStatementID: &source.ID,
			}
			if err := inv.notes.Create(ctx, tx, note); err != nil {
				return nil, fmt.Errorf("create invalidation note: %w", err)
			}

			queue = append(queue, source)
		}
	}
	return newlyInvalid, nil
}
