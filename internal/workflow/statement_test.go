package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&types.User{}, &types.Sentence{}, &types.Note{},
		&types.AnatomicalEntityMeta{}, &types.AnatomicalEntityIntersection{},
		&types.AnatomicalEntity{}, &types.Synonym{},
		&types.Sex{}, &types.Specie{}, &types.Phenotype{},
		&types.ProjectionPhenotype{}, &types.FunctionalCircuitRole{},
		&types.Tag{}, &types.AlertType{}, &types.StatementAlert{},
		&types.PopulationSet{}, &types.Provenance{},
		&types.ConnectivityStatement{}, &types.Via{}, &types.Destination{},
		&types.ExpertConsultant{},
	))
	return db
}

func testUser(login string, staff bool) *types.User {
	return &types.User{ID: uuid.New(), Login: login, IsStaff: staff}
}

func simpleEntity(t *testing.T, db *gorm.DB, uri, name string) types.AnatomicalEntity {
	t.Helper()
	meta := types.AnatomicalEntityMeta{OntologyURI: uri, Name: name}
	entity := types.AnatomicalEntity{SimpleEntity: &meta}
	if db != nil {
		require.NoError(t, db.Create(&entity).Error)
	} else {
		entity.ID = uuid.New()
	}
	return entity
}

func newMachine() *StatementMachine {
	return NewStatementMachine(logger.NewNop())
}

func TestStatementTransitionTable(t *testing.T) {
	machine := newMachine()
	user := testUser("curator", false)

	tests := []struct {
		name       string
		transition string
		from       types.CSState
		want       types.CSState
		wantErr    error
	}{
		{"draft from invalid", TransitionDraft, types.CSStateInvalid, types.CSStateDraft, nil},
		{"compose now from draft", TransitionComposeNow, types.CSStateDraft, types.CSStateComposeNow, nil},
		{"in progress from compose now", TransitionInProgress, types.CSStateComposeNow, types.CSStateInProgress, nil},
		{"in progress from revise", TransitionInProgress, types.CSStateRevise, types.CSStateInProgress, nil},
		{"rejected from review", TransitionRejected, types.CSStateToBeReviewed, types.CSStateRejected, nil},
		{"revise from review", TransitionRevise, types.CSStateToBeReviewed, types.CSStateRevise, nil},
		{"rejected from draft blocked", TransitionRejected, types.CSStateDraft, "", ErrTransitionNotAllowed},
		{"exported from draft blocked", TransitionExported, types.CSStateDraft, "", ErrTransitionNotAllowed},
		{"compose now from review blocked", TransitionComposeNow, types.CSStateToBeReviewed, "", ErrTransitionNotAllowed},
		{"unknown transition", "teleport", types.CSStateDraft, "", ErrTransitionNotAllowed},
		{"nothing leaves deprecated", TransitionDraft, types.CSStateDeprecated, "", ErrTransitionNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statement := &types.ConnectivityStatement{ID: uuid.New(), State: tt.from}
			err := machine.Do(context.Background(), nil, tt.transition, statement, user)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, tt.from, statement.State)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, statement.State)
		})
	}
}

func TestStatementNilUserRejected(t *testing.T) {
	machine := newMachine()
	statement := &types.ConnectivityStatement{State: types.CSStateDraft}
	err := machine.Do(context.Background(), nil, TransitionComposeNow, statement, nil)
	require.ErrorIs(t, err, ErrUserRequired)
}

func TestComposeNowFromApprovedNeedsStaff(t *testing.T) {
	machine := newMachine()
	ctx := context.Background()

	for _, from := range []types.CSState{types.CSStateNPOApproved, types.CSStateExported} {
		statement := &types.ConnectivityStatement{State: from}
		err := machine.Do(ctx, nil, TransitionComposeNow, statement, testUser("curator", false))
		require.ErrorIs(t, err, ErrTransitionNotAllowed)
		require.Equal(t, from, statement.State)

		statement = &types.ConnectivityStatement{State: from}
		require.NoError(t, machine.Do(ctx, nil, TransitionComposeNow, statement, testUser("admin", true)))
		require.Equal(t, types.CSStateComposeNow, statement.State)
	}

	// Draft does not need staff.
	statement := &types.ConnectivityStatement{State: types.CSStateDraft}
	require.NoError(t, machine.Do(ctx, nil, TransitionComposeNow, statement, testUser("curator", false)))
}

func TestReviewGuardRequiresCompleteStatement(t *testing.T) {
	machine := newMachine()
	ctx := context.Background()
	sexID := uuid.New()
	phenotypeID := uuid.New()

	statement := &types.ConnectivityStatement{State: types.CSStateInProgress}
	err := machine.Do(ctx, nil, TransitionToBeReviewed, statement, testUser("curator", false))
	require.ErrorIs(t, err, ErrConditionNotMet)
	require.Equal(t, types.CSStateInProgress, statement.State)

	statement = &types.ConnectivityStatement{
		State:        types.CSStateInProgress,
		Origins:      []types.AnatomicalEntity{{ID: uuid.New()}},
		Destinations: []types.Destination{{ID: uuid.New()}},
		Species:      []types.Specie{{ID: uuid.New()}},
		SexID:        &sexID,
		PhenotypeID:  &phenotypeID,
		Provenances:  []types.Provenance{{URI: "PMID:123"}},
	}
	require.NoError(t, machine.Do(ctx, nil, TransitionToBeReviewed, statement, testUser("curator", false)))
	require.Equal(t, types.CSStateToBeReviewed, statement.State)
}

func TestForwardConnectionGuard(t *testing.T) {
	machine := newMachine()
	ctx := context.Background()

	entityA := simpleEntity(t, nil, "http://purl.org/UBERON_1", "A")
	entityB := simpleEntity(t, nil, "http://purl.org/UBERON_2", "B")

	target := &types.ConnectivityStatement{
		ID:      uuid.New(),
		Origins: []types.AnatomicalEntity{entityB},
	}
	statement := &types.ConnectivityStatement{
		State: types.CSStateToBeReviewed,
		Destinations: []types.Destination{
			{AnatomicalEntities: []types.AnatomicalEntity{entityA}},
		},
		ForwardConnections: []*types.ConnectivityStatement{target},
	}

	err := machine.Do(ctx, nil, TransitionNPOApproved, statement, testUser("curator", false))
	require.ErrorIs(t, err, ErrConditionNotMet)

	target.Origins = []types.AnatomicalEntity{entityA}
	require.NoError(t, machine.Do(ctx, nil, TransitionNPOApproved, statement, testUser("curator", false)))
}

func TestExportAssignsIdentifiersOnce(t *testing.T) {
	db := openTestDB(t)
	machine := newMachine()
	ctx := context.Background()
	user := testUser("curator", false)

	population := types.PopulationSet{Name: "liver", LastUsedIndex: 3}
	require.NoError(t, db.Create(&population).Error)

	sentence := types.Sentence{Title: "s", State: types.SentenceStateComposeNow}
	require.NoError(t, db.Create(&sentence).Error)

	statement := &types.ConnectivityStatement{
		Seq:          1,
		SentenceID:   sentence.ID,
		State:        types.CSStateNPOApproved,
		PopulationID: &population.ID,
	}
	require.NoError(t, db.Create(statement).Error)

	require.NoError(t, machine.Do(ctx, db, TransitionExported, statement, user))
	require.Equal(t, types.CSStateExported, statement.State)
	require.True(t, statement.HasStatementBeenExported)
	require.NotNil(t, statement.PopulationIndex)
	require.Equal(t, 4, *statement.PopulationIndex)
	require.Equal(t, "neuron type liver 4", statement.CurieID)
	require.Equal(t, types.ReferenceURIBase+"/liver/4", statement.ReferenceURI)

	var reloaded types.PopulationSet
	require.NoError(t, db.First(&reloaded, "id = ?", population.ID).Error)
	require.Equal(t, 4, reloaded.LastUsedIndex)

	// A later export cycle must not mint a second identity.
	statement.State = types.CSStateInvalid
	require.NoError(t, machine.Do(ctx, db, TransitionExported, statement, user))
	require.Equal(t, 4, *statement.PopulationIndex)
	require.Equal(t, "neuron type liver 4", statement.CurieID)
	require.NoError(t, db.First(&reloaded, "id = ?", population.ID).Error)
	require.Equal(t, 4, reloaded.LastUsedIndex)
}

func TestExportKeepsSuppliedCurie(t *testing.T) {
	db := openTestDB(t)
	machine := newMachine()

	population := types.PopulationSet{Name: "femrep"}
	require.NoError(t, db.Create(&population).Error)
	sentence := types.Sentence{Title: "s", State: types.SentenceStateComposeNow}
	require.NoError(t, db.Create(&sentence).Error)

	statement := &types.ConnectivityStatement{
		Seq:          2,
		SentenceID:   sentence.ID,
		State:        types.CSStateNPOApproved,
		PopulationID: &population.ID,
		CurieID:      "upstream-curie-7",
	}
	require.NoError(t, db.Create(statement).Error)

	require.NoError(t, machine.Do(context.Background(), db, TransitionExported, statement, testUser("curator", false)))
	require.Equal(t, "upstream-curie-7", statement.CurieID)
	require.Equal(t, types.ReferenceURIBase+"/femrep/1", statement.ReferenceURI)
}

func TestExportRequiresPopulation(t *testing.T) {
	machine := newMachine()
	statement := &types.ConnectivityStatement{State: types.CSStateNPOApproved}
	err := machine.Do(context.Background(), nil, TransitionExported, statement, testUser("curator", false))
	require.ErrorIs(t, err, ErrConditionNotMet)
}

func TestSystemExportedIsPrivileged(t *testing.T) {
	db := openTestDB(t)
	machine := newMachine()
	ctx := context.Background()

	population := types.PopulationSet{Name: "aacgc"}
	require.NoError(t, db.Create(&population).Error)
	sentence := types.Sentence{Title: "s", State: types.SentenceStateComposeNow}
	require.NoError(t, db.Create(&sentence).Error)

	statement := &types.ConnectivityStatement{
		Seq:          3,
		SentenceID:   sentence.ID,
		State:        types.CSStateToBeReviewed,
		PopulationID: &population.ID,
	}
	require.NoError(t, db.Create(statement).Error)

	err := machine.Do(ctx, db, TransitionSystemExported, statement, testUser("curator", true))
	require.ErrorIs(t, err, ErrTransitionNotAllowed)

	system := &types.User{ID: uuid.New(), Login: types.SystemUserLogin, IsStaff: true}
	require.NoError(t, machine.Do(ctx, db, TransitionSystemExported, statement, system))
	require.Equal(t, types.CSStateExported, statement.State)
	require.Equal(t, 1, *statement.PopulationIndex)
}

func TestInvalidMarksStatementExported(t *testing.T) {
	machine := newMachine()
	statement := &types.ConnectivityStatement{State: types.CSStateToBeReviewed}
	require.NoError(t, machine.Do(context.Background(), nil, TransitionInvalid, statement, testUser("curator", false)))
	require.Equal(t, types.CSStateInvalid, statement.State)
	require.True(t, statement.HasStatementBeenExported)
}

func TestDeleteSoftAndHard(t *testing.T) {
	db := openTestDB(t)
	machine := newMachine()
	ctx := context.Background()

	sentence := types.Sentence{Title: "s", State: types.SentenceStateComposeNow}
	require.NoError(t, db.Create(&sentence).Error)

	exported := &types.ConnectivityStatement{
		Seq: 4, SentenceID: sentence.ID, State: types.CSStateExported,
		HasStatementBeenExported: true,
	}
	require.NoError(t, db.Create(exported).Error)

	err := machine.Delete(ctx, db, exported, nil)
	require.ErrorIs(t, err, ErrUserRequired)

	require.NoError(t, machine.Delete(ctx, db, exported, testUser("curator", false)))
	var kept types.ConnectivityStatement
	require.NoError(t, db.First(&kept, "id = ?", exported.ID).Error)
	require.Equal(t, types.CSStateDeprecated, kept.State)

	fresh := &types.ConnectivityStatement{Seq: 5, SentenceID: sentence.ID, State: types.CSStateDraft}
	require.NoError(t, db.Create(fresh).Error)
	require.NoError(t, machine.Delete(ctx, db, fresh, nil))
	err = db.First(&types.ConnectivityStatement{}, "id = ?", fresh.ID).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCanDoesNotRunGuards(t *testing.T) {
	machine := newMachine()
	incomplete := &types.ConnectivityStatement{State: types.CSStateInProgress}
	require.True(t, machine.Can(TransitionToBeReviewed, incomplete, testUser("curator", false)))
	require.False(t, machine.Can(TransitionToBeReviewed, incomplete, nil))
	require.False(t, machine.Can(TransitionRejected, incomplete, testUser("curator", false)))
}
