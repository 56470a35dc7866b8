package workflow

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

// Transition names for the sentence machine.
const (
	SentenceTransitionNeedsFurtherReview = "needs_further_review"
	SentenceTransitionComposeLater       = "compose_later"
	SentenceTransitionReadyToCompose     = "ready_to_compose"
	SentenceTransitionComposeNow         = "compose_now"
	SentenceTransitionCompleted          = "completed"
	SentenceTransitionExcluded           = "excluded"
)

type sentenceTransition struct {
	name       string
	sources    []types.SentenceState
	target     types.SentenceState
	permission func(sentence *types.Sentence, user *types.User) bool
}

// SentenceMachine drives sentence state changes. Compose-now carries a
// side effect: every child statement still in draft is moved to
// compose-now as well.
type SentenceMachine struct {
	log         *logger.Logger
	statements  *StatementMachine
	transitions []sentenceTransition
}

func NewSentenceMachine(baseLog *logger.Logger, statements *StatementMachine) *SentenceMachine {
	anySentenceUser := func(_ *types.Sentence, user *types.User) bool { return user != nil }
	return &SentenceMachine{
		log:        baseLog.With("machine", "SentenceMachine"),
		statements: statements,
		transitions: []sentenceTransition{
			{
				name:       SentenceTransitionNeedsFurtherReview,
				sources:    []types.SentenceState{types.SentenceStateOpen},
				target:     types.SentenceStateNeedsFurtherReview,
				permission: anySentenceUser,
			},
			{
				name: SentenceTransitionComposeLater,
				sources: []types.SentenceState{
					types.SentenceStateOpen, types.SentenceStateNeedsFurtherReview,
				},
				target:     types.SentenceStateComposeLater,
				permission: anySentenceUser,
			},
			{
				name: SentenceTransitionReadyToCompose,
				sources: []types.SentenceState{
					types.SentenceStateOpen, types.SentenceStateNeedsFurtherReview,
					types.SentenceStateComposeLater,
				},
				target:     types.SentenceStateReadyToCompose,
				permission: anySentenceUser,
			},
			{
				// The system principal takes this directly from OPEN
				// when ingestion attaches statements to a fresh
				// sentence.
				name: SentenceTransitionComposeNow,
				sources: []types.SentenceState{
					types.SentenceStateOpen, types.SentenceStateNeedsFurtherReview,
					types.SentenceStateComposeLater, types.SentenceStateReadyToCompose,
				},
				target: types.SentenceStateComposeNow,
				permission: func(sentence *types.Sentence, user *types.User) bool {
					if user == nil {
						return false
					}
					if sentence.State == types.SentenceStateOpen {
						return user.IsStaff || user.IsSystem()
					}
					return true
				},
			},
			{
				name:       SentenceTransitionCompleted,
				sources:    []types.SentenceState{types.SentenceStateComposeNow},
				target:     types.SentenceStateCompleted,
				permission: anySentenceUser,
			},
			{
				name: SentenceTransitionExcluded,
				sources: []types.SentenceState{
					types.SentenceStateOpen, types.SentenceStateNeedsFurtherReview,
					types.SentenceStateComposeLater, types.SentenceStateReadyToCompose,
					types.SentenceStateComposeNow,
				},
				target:     types.SentenceStateExcluded,
				permission: anySentenceUser,
			},
		},
	}
}

func (m *SentenceMachine) Do(ctx context.Context, tx *gorm.DB, name string, sentence *types.Sentence, user *types.User) error {
	var transition *sentenceTransition
	for i := range m.transitions {
		if m.transitions[i].name == name {
			transition = &m.transitions[i]
			break
		}
	}
	if transition == nil {
		return fmt.Errorf("%w: unknown transition %s", ErrTransitionNotAllowed, name)
	}
	found := false
	for _, source := range transition.sources {
		if source == sentence.State {
			found = true
			break
		}
	}
	if !found {
		return notAllowedErr(name, string(sentence.State))
	}
	if user == nil {
		return ErrUserRequired
	}
	if !transition.permission(sentence, user) {
		return fmt.Errorf("%w: %s denied for user %s", ErrTransitionNotAllowed, name, user.Login)
	}

	sentence.State = transition.target
	m.log.Debug("sentence transition", "sentence_id", sentence.ID, "to", transition.target, "user", user.Login)

	if name == SentenceTransitionComposeNow && tx != nil {
		if err := m.promoteDraftStatements(ctx, tx, sentence, user); err != nil {
			return err
		}
	}
	return nil
}

func (m *SentenceMachine) promoteDraftStatements(ctx context.Context, tx *gorm.DB, sentence *types.Sentence, user *types.User) error {
	var drafts []*types.ConnectivityStatement
	err := tx.WithContext(ctx).
		Where("sentence_id = ? AND state = ?", sentence.ID, types.CSStateDraft).
		Find(&drafts).Error
	if err != nil {
		return fmt.Errorf("load draft statements of sentence %s: %w", sentence.ID, err)
	}
	for _, statement := range drafts {
		if err := m.statements.Do(ctx, tx, TransitionComposeNow, statement, user); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Model(statement).Update("state", statement.State).Error; err != nil {
			return err
		}
	}
	return nil
}
