package populations

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
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
		&types.User{}, &types.Sentence{}, &types.PopulationSet{},
		&types.ConnectivityStatement{},
	))
	return db
}

type fixture struct {
	db         *gorm.DB
	reassigner *Reassigner
	population *types.PopulationSet
	statements []*types.ConnectivityStatement
}

func seedPopulation(t *testing.T, curies []string) *fixture {
	t.Helper()
	db := openTestDB(t)
	log := logger.NewNop()

	sentence := &types.Sentence{Title: "s", State: types.SentenceStateComposeNow}
	require.NoError(t, db.Create(sentence).Error)
	population := &types.PopulationSet{Name: "liver"}
	require.NoError(t, db.Create(population).Error)

	statements := make([]*types.ConnectivityStatement, 0, len(curies))
	for i, curie := range curies {
		statement := &types.ConnectivityStatement{
			Seq:                      int64((i + 1) * 10),
			SentenceID:               sentence.ID,
			State:                    types.CSStateExported,
			ReferenceURI:             fmt.Sprintf("http://x/set/liver/ref%d", i),
			CurieID:                  curie,
			PopulationID:             &population.ID,
			HasStatementBeenExported: true,
		}
		require.NoError(t, db.Create(statement).Error)
		statements = append(statements, statement)
	}

	reassigner := NewReassigner(db, repos.NewPopulationRepo(db, log), repos.NewStatementRepo(db, log), nil, log)
	return &fixture{db: db, reassigner: reassigner, population: population, statements: statements}
}

func (f *fixture) indexOf(t *testing.T, statement *types.ConnectivityStatement) int {
	t.Helper()
	var reloaded types.ConnectivityStatement
	require.NoError(t, f.db.First(&reloaded, "id = ?", statement.ID).Error)
	require.NotNil(t, reloaded.PopulationIndex)
	return *reloaded.PopulationIndex
}

func TestReassignResolvesConflicts(t *testing.T) {
	f := seedPopulation(t, []string{
		"neuron type liver 1",
		"neuron type liver 1",
		"neuron type liver 3",
	})

	results, err := f.reassigner.Run(context.Background(), Options{Population: "liver"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The earliest statement keeps the contested index; the loser goes
	// to the bag and receives the next free index after 3.
	require.Equal(t, 1, f.indexOf(t, f.statements[0]))
	require.Equal(t, 4, f.indexOf(t, f.statements[1]))
	require.Equal(t, 3, f.indexOf(t, f.statements[2]))

	var population types.PopulationSet
	require.NoError(t, f.db.First(&population, "id = ?", f.population.ID).Error)
	require.Equal(t, 4, population.LastUsedIndex)
	require.Equal(t, 4, results[0].LastUsedIndex)
}

func TestReassignHandlesMissingCuries(t *testing.T) {
	f := seedPopulation(t, []string{
		"neuron type liver 2",
		"",
		"neuron type kidney 5",
	})

	_, err := f.reassigner.Run(context.Background(), Options{Population: "liver"})
	require.NoError(t, err)

	require.Equal(t, 2, f.indexOf(t, f.statements[0]))
	// Bag statements drain in seq order from max(used)+1.
	require.Equal(t, 3, f.indexOf(t, f.statements[1]))
	require.Equal(t, 4, f.indexOf(t, f.statements[2]))
}

func TestReassignMatchesCaseInsensitively(t *testing.T) {
	f := seedPopulation(t, []string{"Neuron Type LIVER 7"})

	_, err := f.reassigner.Run(context.Background(), Options{Population: "liver"})
	require.NoError(t, err)
	require.Equal(t, 7, f.indexOf(t, f.statements[0]))
}

func TestReassignDryRunWritesNothing(t *testing.T) {
	f := seedPopulation(t, []string{"neuron type liver 1", "neuron type liver 1"})

	results, err := f.reassigner.Run(context.Background(), Options{Population: "liver", DryRun: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 2, results[0].Changed)

	for _, statement := range f.statements {
		var reloaded types.ConnectivityStatement
		require.NoError(t, f.db.First(&reloaded, "id = ?", statement.ID).Error)
		require.Nil(t, reloaded.PopulationIndex)
	}
	var population types.PopulationSet
	require.NoError(t, f.db.First(&population, "id = ?", f.population.ID).Error)
	require.Zero(t, population.LastUsedIndex)
}

func TestReassignSkipsUnchangedStatements(t *testing.T) {
	f := seedPopulation(t, []string{"neuron type liver 1", "neuron type liver 2"})

	_, err := f.reassigner.Run(context.Background(), Options{Population: "liver"})
	require.NoError(t, err)

	// Second run over a settled population plans zero changes.
	results, err := f.reassigner.Run(context.Background(), Options{Population: "liver"})
	require.NoError(t, err)
	require.Zero(t, results[0].Changed)
}

func TestPlanIgnoresForeignPopulationPattern(t *testing.T) {
	statement := &types.ConnectivityStatement{Seq: 1, CurieID: "neuron type liver-east 2"}

	result := plan("liver", []*types.ConnectivityStatement{statement})
	require.Equal(t, 1, result.Changed)
	require.Equal(t, 1, result.Changes[0].Assigned)
	require.Contains(t, result.Changes[0].Reason, "does not match")
}
