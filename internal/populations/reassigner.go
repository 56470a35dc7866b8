// Package populations reassigns the per-population export indices of
// exported statements from their legacy curie identifiers.
package populations

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
)

// Options selects which populations to process. An empty Population
// means all of them. DryRun computes and logs the plan without writing.
type Options struct {
	Population string
	DryRun     bool
}

// Change records one statement whose population index moved.
type Change struct {
	StatementID uuid.UUID
	CurieID     string
	Previous    *int
	Assigned    int
	Reason      string
}

// Result summarizes one population's reassignment.
type Result struct {
	Population    string
	Statements    int
	Changed       int
	LastUsedIndex int
	Changes       []Change
}

type Reassigner struct {
	db          *gorm.DB
	populations repos.PopulationRepo
	statements  repos.StatementRepo
	locker      Locker
	log         *logger.Logger
}

// NewReassigner builds the offline reassignment job. A nil locker
// disables cross-process serialization.
func NewReassigner(db *gorm.DB, populations repos.PopulationRepo, statements repos.StatementRepo, locker Locker, baseLog *logger.Logger) *Reassigner {
	return &Reassigner{
		db:          db,
		populations: populations,
		statements:  statements,
		locker:      locker,
		log:         baseLog.With("component", "Reassigner"),
	}
}

// Run processes the selected populations, one transaction each.
func (r *Reassigner) Run(ctx context.Context, opts Options) ([]*Result, error) {
	var selected []*types.PopulationSet
	if opts.Population != "" {
		population, err := r.populations.GetByName(ctx, nil, opts.Population)
		if err != nil {
			return nil, fmt.Errorf("population %q: %w", opts.Population, err)
		}
		selected = append(selected, population)
	} else {
		all, err := r.populations.List(ctx, nil)
		if err != nil {
			return nil, err
		}
		selected = all
	}

	results := make([]*Result, 0, len(selected))
	for _, population := range selected {
		result, err := r.reassign(ctx, population, opts.DryRun)
		if err != nil {
			return results, fmt.Errorf("reassign %s: %w", population.Name, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Reassigner) reassign(ctx context.Context, population *types.PopulationSet, dryRun bool) (*Result, error) {
	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, population.Name)
		if err != nil {
			return nil, err
		}
		defer release(ctx)
	}

	statements, err := r.statements.ListExportedByPopulation(ctx, nil, population.ID)
	if err != nil {
		return nil, err
	}

	result := plan(population.Name, statements)
	for _, change := range result.Changes {
		r.log.Info("population index change",
			"population", population.Name,
			"statement_id", change.StatementID,
			"curie_id", change.CurieID,
			"assigned", change.Assigned,
			"reason", change.Reason,
			"dry_run", dryRun)
	}
	if dryRun || len(statements) == 0 {
		return result, nil
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		for _, change := range result.Changes {
			err := tx.WithContext(ctx).
				Model(&types.ConnectivityStatement{}).
				Where("id = ?", change.StatementID).
				Update("population_index", change.Assigned).Error
			if err != nil {
				return err
			}
		}
		if population.LastUsedIndex != result.LastUsedIndex {
			population.LastUsedIndex = result.LastUsedIndex
			if err := r.populations.Update(ctx, tx, population); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type bagEntry struct {
	statement *types.ConnectivityStatement
	reason    string
}

// plan derives the new index of every statement. Statements arrive in
// seq order; within a contested index the first one wins and the rest
// drain into the bag, which is assigned from max(used)+1 upward.
func plan(name string, statements []*types.ConnectivityStatement) *Result {
	pattern := regexp.MustCompile(`(?i)neuron type ` + regexp.QuoteMeta(name) + `\s+(\d+)`)

	buckets := map[int][]*types.ConnectivityStatement{}
	var bag []bagEntry
	for _, statement := range statements {
		if statement.CurieID == "" {
			bag = append(bag, bagEntry{statement, "no curie"})
			continue
		}
		match := pattern.FindStringSubmatch(statement.CurieID)
		if match == nil {
			bag = append(bag, bagEntry{statement, fmt.Sprintf("curie %q does not match population %s", statement.CurieID, name)})
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			bag = append(bag, bagEntry{statement, fmt.Sprintf("curie %q has unusable index", statement.CurieID)})
			continue
		}
		buckets[index] = append(buckets[index], statement)
	}

	indices := make([]int, 0, len(buckets))
	for index := range buckets {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	used := map[int]bool{}
	assigned := map[uuid.UUID]int{}
	reasons := map[uuid.UUID]string{}
	for _, index := range indices {
		contenders := buckets[index]
		winner := contenders[0]
		assigned[winner.ID] = index
		used[index] = true
		for _, loser := range contenders[1:] {
			bag = append(bag, bagEntry{loser, fmt.Sprintf("index %d won by an earlier statement", index)})
		}
	}

	sort.Slice(bag, func(i, j int) bool { return bag[i].statement.Seq < bag[j].statement.Seq })

	cursor := maxIndex(used) + 1
	for _, entry := range bag {
		for used[cursor] {
			cursor++
		}
		assigned[entry.statement.ID] = cursor
		reasons[entry.statement.ID] = entry.reason
		used[cursor] = true
		cursor++
	}

	result := &Result{
		Population:    name,
		Statements:    len(statements),
		LastUsedIndex: maxIndex(used),
	}
	for _, statement := range statements {
		index := assigned[statement.ID]
		if statement.PopulationIndex != nil && *statement.PopulationIndex == index {
			continue
		}
		reason := reasons[statement.ID]
		if reason == "" {
			reason = "index from curie"
		}
		result.Changes = append(result.Changes, Change{
			StatementID: statement.ID,
			CurieID:     statement.CurieID,
			Previous:    statement.PopulationIndex,
			Assigned:    index,
			Reason:      reason,
		})
	}
	result.Changed = len(result.Changes)
	return result
}

func maxIndex(used map[int]bool) int {
	max := 0
	for index := range used {
		if index > max {
			max = index
		}
	}
	return max
}
