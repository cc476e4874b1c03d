package pointt

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"pointtbridge/internal/auth"
)

// Response keys carrying embedded references to other resource nodes.
const (
	referencesKey = "references"
	idKey         = "id"
)

// Getter is the fetch operation the walker needs from the client.
type Getter interface {
	Get(ctx context.Context, path string) (Value, error)
}

// WalkResult is the outcome of one walk: per-path values for everything that
// was fetched and per-path errors for everything that was not. A walk never
// aborts on a single failed path.
type WalkResult struct {
	Values map[string]Value
	Errors map[string]error
}

// AuthFailed reports whether any path failed because the session is dead.
func (r WalkResult) AuthFailed() bool {
	for _, err := range r.Errors {
		if errors.Is(err, auth.ErrReauthRequired) {
			return true
		}
	}
	return false
}

// Complete reports whether every requested path was fetched.
func (r WalkResult) Complete() bool {
	return len(r.Errors) == 0
}

// Walker fetches a set of root paths and expands embedded references exactly
// one level deep. Referenced nodes' own references are not followed, which
// bounds the fan-out and rules out cycles.
type Walker struct {
	client        Getter
	maxConcurrent int
	logger        *slog.Logger
}

// NewWalker creates a walker. maxConcurrent bounds the parallel fetches per
// phase; values below 1 fall back to 4.
func NewWalker(client Getter, maxConcurrent int, logger *slog.Logger) *Walker {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		client:        client,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Walk fetches every root path concurrently, then every unique one-level
// reference found in the root responses. Results are merged only after all
// fetches have settled.
func (w *Walker) Walk(ctx context.Context, roots []string) WalkResult {
	result := WalkResult{
		Values: make(map[string]Value),
		Errors: make(map[string]error),
	}

	var mu sync.Mutex
	w.fetchAll(ctx, roots, &mu, &result)

	refs := w.collectReferences(roots, result.Values)
	if len(refs) > 0 {
		w.fetchAll(ctx, refs, &mu, &result)
	}

	return result
}

// fetchAll fetches one batch of paths with bounded concurrency, recording
// each outcome under its own path.
func (w *Walker) fetchAll(ctx context.Context, paths []string, mu *sync.Mutex, result *WalkResult) {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(w.maxConcurrent)

	for _, path := range paths {
		group.Go(func() error {
			value, err := w.client.Get(ctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.logger.Debug("Path fetch failed",
					"component", "walker",
					"path", path,
					"error", err)
				result.Errors[path] = err
				return nil
			}
			result.Values[path] = value
			return nil
		})
	}

	group.Wait()
}

// collectReferences gathers unique reference ids from the fetched roots,
// skipping anything already fetched or already requested as a root.
func (w *Walker) collectReferences(roots []string, values map[string]Value) []string {
	isRoot := make(map[string]bool, len(roots))
	for _, root := range roots {
		isRoot[root] = true
	}

	seen := make(map[string]bool)
	var refs []string
	for _, root := range roots {
		value, ok := values[root]
		if !ok {
			continue
		}
		for _, ref := range referenceIDs(value) {
			if seen[ref] || isRoot[ref] {
				continue
			}
			if _, fetched := values[ref]; fetched {
				continue
			}
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// referenceIDs extracts reference ids from one response value.
func referenceIDs(value Value) []string {
	raw, ok := value[referencesKey].([]interface{})
	if !ok {
		return nil
	}

	var ids []string
	for _, entry := range raw {
		ref, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if id, ok := ref[idKey].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
