package sync

import (
	"context"
	"fmt"
	"sort"

	"github.com/schaermu/docsync/internal/digest"
	"github.com/schaermu/docsync/internal/fsutil"
	"github.com/schaermu/docsync/internal/manifest"
	"github.com/schaermu/docsync/internal/templates"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// Classifier compares generated content, disk content and the manifest's
// record for every tool-owned path of a provider.
type Classifier struct {
	provider    templates.Provider
	alg         digest.Algorithm
	concurrency int
}

// NewClassifier creates a classifier. concurrency bounds parallel reads; a
// non-positive value uses the default.
func NewClassifier(p templates.Provider, alg digest.Algorithm, concurrency int) *Classifier {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Classifier{provider: p, alg: alg, concurrency: concurrency}
}

// Classify builds the plan for root. Per-file failures are recorded on the
// classification; only context cancellation aborts the whole plan.
func (c *Classifier) Classify(ctx context.Context, root string, m *manifest.Manifest) (*Plan, error) {
	owned := c.provider.OwnedPaths()
	args := m.Args()
	files := make([]Classification, len(owned))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, path := range owned {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			files[i] = c.classifyFile(root, path, args, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("classification interrupted: %w", err)
	}

	return &Plan{
		Files:   files,
		Removed: removedPaths(m, owned),
	}, nil
}

func (c *Classifier) classifyFile(root, path string, args templates.Args, m *manifest.Manifest) Classification {
	cl := Classification{Path: path}

	generated, err := c.provider.Render(path, args)
	if err != nil {
		cl.Err = err
		return cl
	}
	cl.Generated = generated
	cl.GeneratedHash = c.alg.SumString(generated)

	abs, err := fsutil.SafeJoin(root, path)
	if err != nil {
		cl.Err = err
		return cl
	}

	disk, exists, err := fsutil.ReadOptional(abs)
	if err != nil {
		cl.Err = fmt.Errorf("failed to read %s: %w", path, err)
		return cl
	}
	if !exists {
		cl.Status = StatusMissing
		return cl
	}

	cl.DiskHash = c.alg.Sum(disk)
	if cl.DiskHash == cl.GeneratedHash {
		cl.Status = StatusAlreadyCurrent
		return cl
	}

	rec, tracked := m.Files[path]
	if !tracked {
		cl.Status = StatusNew
		return cl
	}

	if h, ok := rec.TrustedHash(); ok {
		cl.ManifestHash = h
		if h == cl.DiskHash {
			cl.Status = StatusUnchanged
			return cl
		}
	}

	cl.Status = StatusModified
	return cl
}

// removedPaths returns tool-owned manifest paths absent from owned, sorted.
func removedPaths(m *manifest.Manifest, owned []string) []string {
	current := make(map[string]bool, len(owned))
	for _, p := range owned {
		current[p] = true
	}

	var removed []string
	for _, p := range m.ToolPaths() {
		if !current[p] {
			removed = append(removed, p)
		}
	}
	sort.Strings(removed)
	return removed
}
