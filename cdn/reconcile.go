package cdn

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
)

// ReconcileReport lists where the directory tree and the index disagree.
type ReconcileReport struct {
	// Orphans maps directories without index entry to the counter they need.
	Orphans map[string]uint32
	// Missing lists index entries without a directory.
	Missing []string
	// Lagging maps entries whose counter is not above every stored id to the
	// counter they need.
	Lagging map[string]uint32
}

func (r *ReconcileReport) Clean() bool {
	return len(r.Orphans) == 0 && len(r.Missing) == 0 && len(r.Lagging) == 0
}

func (r *ReconcileReport) String() string {
	if r.Clean() {
		return "clean"
	}

	parts := make([]string, 0, 3)
	if len(r.Orphans) > 0 {
		parts = append(parts, fmt.Sprintf("orphans=%v", sortedKeys(r.Orphans)))
	}
	if len(r.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing=%v", r.Missing))
	}
	if len(r.Lagging) > 0 {
		parts = append(parts, fmt.Sprintf("lagging=%v", sortedKeys(r.Lagging)))
	}

	return strings.Join(parts, " ")
}

// Check scans the root and reports divergence without changing anything.
func (c *Cdn) Check(ctx context.Context) (*ReconcileReport, error) {
	const op = "check"

	if err := c.checkOpen(op); err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		Orphans: make(map[string]uint32),
		Lagging: make(map[string]uint32),
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, newError(ErrInternal, op, "", err)
	}

	dirs := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, newError(ErrInternal, op, "", err)
		}

		name := entry.Name()
		if !entry.IsDir() || ValidateRecipeName(name) != nil || Key(name) != name {
			continue
		}
		dirs[name] = struct{}{}

		required, err := c.requiredCounter(name)
		if err != nil {
			return nil, newError(ErrInternal, op, name, err)
		}

		counter, ok := c.index.Get(name)
		switch {
		case !ok:
			report.Orphans[name] = required
		case counter < required:
			report.Lagging[name] = required
		}
	}

	for _, key := range c.index.Keys() {
		if _, ok := dirs[key]; !ok {
			report.Missing = append(report.Missing, key)
		}
	}

	return report, nil
}

// Reconcile repairs the divergence found by Check in one transaction: orphan
// directories are adopted, entries without directory are dropped and lagging
// counters are raised.
func (c *Cdn) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report, err := c.Check(ctx)
	if err != nil {
		return nil, err
	}
	if report.Clean() {
		return report, nil
	}

	err = c.Transaction(ctx, func(tx *Tx) error {
		for name, counter := range report.Orphans {
			c.index.Set(name, counter)
			tx.ops++
		}
		for name, counter := range report.Lagging {
			c.index.Set(name, counter)
			tx.ops++
		}
		for _, name := range report.Missing {
			// Already gone when a concurrent delete won.
			_ = c.index.Remove(name)
			tx.ops++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

// requiredCounter returns the smallest counter that cannot collide with an
// image already stored in the recipe directory.
func (c *Cdn) requiredCounter(key string) (uint32, error) {
	images, err := listImages(c.recipePath(key))
	if err != nil {
		return 0, err
	}

	var required uint32
	for _, image := range images {
		seq, err := parseSequence(image)
		if err != nil {
			continue
		}
		if seq == math.MaxUint32 {
			required = seq
			continue
		}
		required = max(required, seq+1)
	}

	return required, nil
}

func sortedKeys(m map[string]uint32) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	slices.Sort(keys)
	return keys
}
