package cli

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"sqlbeam/internal/domain"
)

// fileGenerator serves candidate SQL from a directory of .sql files, one
// candidate per file in lexical order. It exists so the loop can run
// end-to-end against pre-authored rewrites; a production deployment plugs
// a real producer into the same interface.
type fileGenerator struct {
	mu    sync.Mutex
	queue []string // remaining file paths
}

var _ domain.CandidateGenerator = (*fileGenerator)(nil)

func newFileGenerator(dir string) (*fileGenerator, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var queue []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		queue = append(queue, filepath.Join(dir, e.Name()))
	}
	sort.Strings(queue)
	return &fileGenerator{queue: queue}, nil
}

// Generate pops up to n files off the queue. Once the directory is
// exhausted it returns empty slices, which the caller treats as a round
// with no output.
func (g *fileGenerator) Generate(ctx context.Context, _ domain.GeneratorContext, n int) ([]domain.CandidateOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	take := min(n, len(g.queue))
	paths := g.queue[:take]
	g.queue = g.queue[take:]
	g.mu.Unlock()

	outs := make([]domain.CandidateOutput, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		outs = append(outs, domain.CandidateOutput{
			SQL:        strings.TrimSpace(string(data)),
			ProducedBy: filepath.Base(p),
		})
	}
	return outs, nil
}
