package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

func newSentenceMachine() *SentenceMachine {
	return NewSentenceMachine(logger.NewNop(), newMachine())
}

func TestSentenceTransitionTable(t *testing.T) {
	machine := newSentenceMachine()
	user := testUser("curator", false)

	tests := []struct {
		name       string
		transition string
		from       types.SentenceState
		want       types.SentenceState
		wantErr    error
	}{
		{"open to needs review", SentenceTransitionNeedsFurtherReview, types.SentenceStateOpen, types.SentenceStateNeedsFurtherReview, nil},
		{"open to compose later", SentenceTransitionComposeLater, types.SentenceStateOpen, types.SentenceStateComposeLater, nil},
		{"compose later to ready", SentenceTransitionReadyToCompose, types.SentenceStateComposeLater, types.SentenceStateReadyToCompose, nil},
		{"ready to compose now", SentenceTransitionComposeNow, types.SentenceStateReadyToCompose, types.SentenceStateComposeNow, nil},
		{"compose now to completed", SentenceTransitionCompleted, types.SentenceStateComposeNow, types.SentenceStateCompleted, nil},
		{"open to excluded", SentenceTransitionExcluded, types.SentenceStateOpen, types.SentenceStateExcluded, nil},
		{"completed is terminal", SentenceTransitionExcluded, types.SentenceStateCompleted, "", ErrTransitionNotAllowed},
		{"completed needs compose now", SentenceTransitionCompleted, types.SentenceStateOpen, "", ErrTransitionNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentence := &types.Sentence{State: tt.from}
			err := machine.Do(context.Background(), nil, tt.transition, sentence, user)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, sentence.State)
		})
	}
}

func TestSentenceComposeNowFromOpenNeedsStaff(t *testing.T) {
	machine := newSentenceMachine()
	ctx := context.Background()

	sentence := &types.Sentence{State: types.SentenceStateOpen}
	err := machine.Do(ctx, nil, SentenceTransitionComposeNow, sentence, testUser("curator", false))
	require.ErrorIs(t, err, ErrTransitionNotAllowed)

	sentence = &types.Sentence{State: types.SentenceStateOpen}
	require.NoError(t, machine.Do(ctx, nil, SentenceTransitionComposeNow, sentence, testUser("admin", true)))
	require.Equal(t, types.SentenceStateComposeNow, sentence.State)

	system := &types.User{Login: types.SystemUserLogin}
	sentence = &types.Sentence{State: types.SentenceStateOpen}
	require.NoError(t, machine.Do(ctx, nil, SentenceTransitionComposeNow, sentence, system))
}

func TestSentenceComposeNowPromotesDraftStatements(t *testing.T) {
	db := openTestDB(t)
	machine := newSentenceMachine()
	ctx := context.Background()

	sentence := &types.Sentence{Title: "s", State: types.SentenceStateReadyToCompose}
	require.NoError(t, db.Create(sentence).Error)

	draft := &types.ConnectivityStatement{Seq: 11, SentenceID: sentence.ID, State: types.CSStateDraft}
	reviewed := &types.ConnectivityStatement{Seq: 12, SentenceID: sentence.ID, State: types.CSStateToBeReviewed}
	require.NoError(t, db.Create(draft).Error)
	require.NoError(t, db.Create(reviewed).Error)

	require.NoError(t, machine.Do(ctx, db, SentenceTransitionComposeNow, sentence, testUser("curator", false)))
	require.Equal(t, types.SentenceStateComposeNow, sentence.State)

	var states []types.CSState
	for _, id := range []string{draft.ID.String(), reviewed.ID.String()} {
		var statement types.ConnectivityStatement
		require.NoError(t, db.First(&statement, "id = ?", id).Error)
		states = append(states, statement.State)
	}
	require.Equal(t, []types.CSState{types.CSStateComposeNow, types.CSStateToBeReviewed}, states)
}
