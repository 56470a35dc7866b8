package neurondm

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Source yields neuron records from the ontology knowledge base.
type Source interface {
	Neurons(ctx context.Context) ([]*Neuron, error)
}

// PopulationFilter restricts ingestion to an explicit set of neuron
// URIs. A nil filter admits everything; an empty one admits nothing.
type PopulationFilter struct {
	uris map[string]struct{}
}

// LoadPopulationFilter reads one URI per line, ignoring blank lines.
// An absent path returns a nil filter ("ingest everything"); an empty
// file returns an empty filter ("ingest nothing").
func LoadPopulationFilter(path string) (*PopulationFilter, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open population file: %w", err)
	}
	defer file.Close()

	filter := &PopulationFilter{uris: map[string]struct{}{}}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		filter.uris[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read population file: %w", err)
	}
	return filter, nil
}

func NewPopulationFilter(uris []string) *PopulationFilter {
	filter := &PopulationFilter{uris: map[string]struct{}{}}
	for _, uri := range uris {
		filter.uris[uri] = struct{}{}
	}
	return filter
}

func (f *PopulationFilter) Admits(uri string) bool {
	if f == nil {
		return true
	}
	_, ok := f.uris[uri]
	return ok
}

func (f *PopulationFilter) Contains(uri string) bool {
	return f != nil && f.Admits(uri)
}

func (f *PopulationFilter) IsNil() bool { return f == nil }
