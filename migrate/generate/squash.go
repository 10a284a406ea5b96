package generate

import (
	"fmt"

	"github.com/schemaflow/schemaflow/internal/debug"
	"github.com/schemaflow/schemaflow/migrate/diff"
	"github.com/schemaflow/schemaflow/migrate/record"
	"github.com/schemaflow/schemaflow/schema"
)

// SquashResult is the outcome of a squash: the baseline record replacing the
// squashed run and the versions it supersedes.
type SquashResult struct {
	Baseline *record.MigrationRecord
	Squashed []string
}

// Squash collapses the run of records from the first version up to and
// including toVersion into one baseline record. The baseline carries the diff
// between the schema before the run (empty, since the run starts at the first
// record) and the schema after toVersion, and takes toVersion as its own
// version so later records that depend on the boundary stay resolvable.
//
// A record outside the run that depends on a version strictly inside it would
// be left dangling; that is an error, not a silent rewrite.
func (g *Generator) Squash(all []*record.MigrationRecord, toVersion string) (*SquashResult, error) {
	record.Sort(all)
	end := -1
	for i, r := range all {
		if r.Version == toVersion {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, fmt.Errorf("squash target %s not found among known migrations", toVersion)
	}
	if end == 0 {
		return nil, fmt.Errorf("squash target %s is the first migration; nothing to squash", toVersion)
	}

	squashed := make(map[string]bool, end+1)
	var squashedVersions []string
	for _, r := range all[:end+1] {
		squashed[r.Version] = true
		squashedVersions = append(squashedVersions, r.Version)
	}
	for _, r := range all[end+1:] {
		for _, dep := range r.DependsOn {
			if squashed[dep] && dep != toVersion {
				return nil, fmt.Errorf("cannot squash: migration %s depends on %s inside the squashed range", r.Version, dep)
			}
		}
	}

	// Replay the run's structural operations to recover the boundary schema.
	after := schema.NewSnapshot()
	for _, r := range all[:end+1] {
		if len(r.Ops) == 0 {
			return nil, fmt.Errorf("cannot squash: migration %s carries no structural operations", r.Version)
		}
		next, err := diff.Apply(after, r.Ops)
		if err != nil {
			return nil, fmt.Errorf("cannot squash: replaying %s: %w", r.Version, err)
		}
		after = next
	}

	d, err := diff.NewDiffer().Compare(after, schema.NewSnapshot())
	if err != nil {
		return nil, err
	}
	baseline, err := g.Generate(d, nil, Options{
		Name:    "baseline",
		Version: toVersion,
	})
	if err != nil {
		return nil, err
	}
	debug.Debug("squashed migrations", "count", len(squashedVersions), "baseline", toVersion)
	return &SquashResult{Baseline: baseline, Squashed: squashedVersions}, nil
}
