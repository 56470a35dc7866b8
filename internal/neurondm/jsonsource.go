package neurondm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/neurocurate/composer/internal/platform/logger"
)

// JSONLSource reads neuron records from a JSON-lines export of the
// knowledge base, one record per line.
type JSONLSource struct {
	path string
	log  *logger.Logger
}

func NewJSONLSource(path string, baseLog *logger.Logger) *JSONLSource {
	return &JSONLSource{path: path, log: baseLog.With("source", "JSONLSource")}
}

func (s *JSONLSource) Neurons(ctx context.Context) ([]*Neuron, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open neuron export: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read neuron export: %w", err)
	}

	neurons := make([]*Neuron, len(lines))
	var mu sync.Mutex
	var decodeErrs []error

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())
	for i, line := range lines {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var neuron Neuron
			if err := json.Unmarshal([]byte(line), &neuron); err != nil {
				// A malformed record is an anomaly for the caller,
				// not a fatal parse failure.
				mu.Lock()
				decodeErrs = append(decodeErrs, fmt.Errorf("line %d: %w", i+1, err))
				mu.Unlock()
				return nil
			}
			neurons[i] = &neuron
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Neuron, 0, len(neurons))
	for _, neuron := range neurons {
		if neuron != nil {
			out = append(out, neuron)
		}
	}
	for _, decodeErr := range decodeErrs {
		s.log.Warn("skipping undecodable neuron record", "error", decodeErr)
	}
	s.log.Info("loaded neuron export", "path", s.path, "neurons", len(out), "skipped", len(decodeErrs))
	return out, nil
}
