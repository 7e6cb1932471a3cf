package lattice

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/internal/evaluator"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func buildSession(t *testing.T, dir string, entries []string, opts ...Option) (*Session, *State) {
	t.Helper()
	s, err := NewSession(dir, entries, opts...)
	require.NoError(t, err)
	state, err := s.BuildInitial(context.Background())
	require.NoError(t, err)
	return s, state
}

func TestSession_BuildInitial(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import "./b"; export const user = model.define({});`)
	writeFile(t, dir, "b.ts", `export const listUsers = query.list({});`)

	s, state := buildSession(t, dir, []string{"a.ts"})

	assert.Len(t, state.Snapshots, 2)
	assert.Equal(t, 1, state.Graph.EdgeCount())
	assert.Empty(t, state.CycleDiagnostics)

	snap := s.Snapshot()
	assert.True(t, snap.Built)
	assert.Equal(t, 2, snap.SnapshotCount)
	assert.NotEmpty(t, snap.SessionID)
}

func TestSession_EvaluationBuckets(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `
export const user = model.define({});
export const listUsers = query.list({});
export const format = (u) => u.name;
`)

	_, state := buildSession(t, dir, []string{"a.ts"})

	result := state.Evaluation[a]
	kinds := make(map[string]Kind)
	for _, def := range result.Definitions {
		kinds[def.ExportName] = def.Kind
	}
	assert.Equal(t, KindModel, kinds["user"])
	assert.Equal(t, KindOperation, kinds["listUsers"])
	assert.Equal(t, KindHelper, kinds["format"])
	for _, def := range result.Definitions {
		assert.Equal(t, a+"::"+def.ExportName, def.CanonicalID)
	}
}

func TestSession_UpdateInvalidatesTransitiveDependents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import "./b"; export const a = query.list({});`)
	writeFile(t, dir, "b.ts", `import "./c"; export const b = query.list({});`)
	c := writeFile(t, dir, "c.ts", `export const c = model.define({ v: 1 });`)
	d := writeFile(t, dir, "d.ts", `export const d = model.define({});`)

	s, first := buildSession(t, dir, []string{"a.ts", "d.ts"})
	dCreated := first.Snapshots[d].CreatedAtMillis

	writeFile(t, dir, "c.ts", `export const c = model.define({ v: 2 });`)
	second, err := s.Update(context.Background(), Changeset{Modified: []string{c}})
	require.NoError(t, err)

	// C was re-parsed; its snapshot carries the new content.
	assert.Contains(t, second.Snapshots[c].Analysis.Definitions[0].Expression, "2")
	// D kept its prior snapshot.
	assert.Equal(t, dCreated, second.Snapshots[d].CreatedAtMillis)
	// A, B, C, D all still evaluated.
	assert.Len(t, second.Evaluation, 4)
}

func TestSession_UpdateRemoval(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `import "./b"; export const a = query.list({});`)
	b := writeFile(t, dir, "b.ts", `export const b = model.define({});`)

	s, first := buildSession(t, dir, []string{"a.ts"})
	require.Len(t, first.Snapshots, 2)

	require.NoError(t, os.Remove(b))
	second, err := s.Update(context.Background(), Changeset{Removed: []string{b}})
	require.NoError(t, err)

	assert.NotContains(t, second.Snapshots, b)
	assert.NotContains(t, second.Evaluation, b)
	// A was re-parsed, its import no longer resolves, so b is gone from
	// the graph's maps too.
	assert.False(t, second.Graph.HasNode(b))
	assert.Contains(t, second.Snapshots, a)
}

func TestSession_UpdateAddition(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `import "./b"; export const a = query.list({});`)

	s, first := buildSession(t, dir, []string{"a.ts"})
	require.Len(t, first.Snapshots, 1)

	b := writeFile(t, dir, "b.ts", `export const b = model.define({});`)
	second, err := s.Update(context.Background(), Changeset{Added: []string{b}})
	require.NoError(t, err)

	assert.Contains(t, second.Snapshots, b)
	assert.Contains(t, second.Evaluation, b)
}

func TestSession_CycleBuildTerminates(t *testing.T) {
	dir := t.TempDir()
	x := writeFile(t, dir, "x.ts", `import "./y"; export const x = model.define({});`)
	y := writeFile(t, dir, "y.ts", `import "./x"; export const y = model.define({});`)

	_, state := buildSession(t, dir, []string{"x.ts"})

	require.Len(t, state.CycleDiagnostics, 1)
	assert.Contains(t, state.Evaluation, x)
	assert.Contains(t, state.Evaluation, y)
	require.Len(t, state.Evaluation[x].Definitions, 1)
	require.Len(t, state.Evaluation[y].Definitions, 1)
}

func TestSession_RepeatedBuildHitsCache(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `export const a = model.define({});`)

	s, first := buildSession(t, dir, []string{"a.ts"})
	sig := first.Snapshots[a].Signature

	second, err := s.BuildInitial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sig, second.Snapshots[a].Signature)
	assert.Equal(t, first.Snapshots[a].CreatedAtMillis, second.Snapshots[a].CreatedAtMillis)
}

func TestSession_GlobEntryWithUnmatchedPattern(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "src/a.ts", `export const a = model.define({});`)

	_, state := buildSession(t, dir, []string{"src/a.ts", "src/missing-glob-*.ts"})
	assert.Contains(t, state.Snapshots, a)
	assert.Len(t, state.Snapshots, 1)
}

func TestSession_NoEntries(t *testing.T) {
	_, err := NewSession(t.TempDir(), nil)
	require.Error(t, err)
}

func TestSession_SchemaChangeForcesFullRebuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `export const a = model.define({});`)

	s, first := buildSession(t, dir, []string{"a.ts"}, WithSchemaHash("v1"))
	assert.Equal(t, "v1", first.SchemaHash)

	// Simulate a schema bump between updates.
	s.schemaHash = "v2"
	second, err := s.Update(context.Background(), Changeset{Modified: []string{"a.ts"}})
	require.NoError(t, err)
	assert.Equal(t, "v2", second.SchemaHash)
	assert.Len(t, second.Snapshots, 1)
}

func TestSession_UpdateBeforeBuildRunsFullBuild(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `export const a = model.define({});`)

	s, err := NewSession(dir, []string{"a.ts"})
	require.NoError(t, err)

	state, err := s.Update(context.Background(), Changeset{Modified: []string{a}})
	require.NoError(t, err)
	assert.Contains(t, state.Snapshots, a)
}

func TestSession_EmptyChangesetIsNoOp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", `export const a = model.define({});`)

	s, first := buildSession(t, dir, []string{"a.ts"})
	second, err := s.Update(context.Background(), Changeset{})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestSession_DuplicateAcrossNestedBindings(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `
export const list = query.list({});
export const queries = { list: query.list({}) };
`)

	_, state := buildSession(t, dir, []string{"a.ts"})

	ids := make(map[string]bool)
	for _, def := range state.Evaluation[a].Definitions {
		ids[def.CanonicalID] = true
	}
	assert.True(t, ids[a+"::list"])
	assert.True(t, ids[a+"::queries.list"])
}

func TestSession_IssuesSurfaceInSnapshotProjection(t *testing.T) {
	dir := t.TempDir()
	// Redeclared export produces a duplicate canonical ID.
	a := writeFile(t, dir, "a.ts", `
export const user = model.define({});
export const user = model.define({});
`)

	s, state := buildSession(t, dir, []string{"a.ts"})

	var issues []evaluator.Issue
	for _, result := range state.Evaluation {
		issues = append(issues, result.Issues...)
	}
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0].Message, "duplicate")
	assert.Equal(t, a+"::user", issues[0].CanonicalID)

	snap := s.Snapshot()
	assert.GreaterOrEqual(t, snap.IssueCount, 1)
	assert.Equal(t, 1, snap.GraphNodes)
}

func TestSession_StateGenerationsAreIndependent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `export const a = model.define({ v: 1 });`)

	s, first := buildSession(t, dir, []string{"a.ts"})

	writeFile(t, dir, "a.ts", `export const a = model.define({ v: 2 });`)
	second, err := s.Update(context.Background(), Changeset{Modified: []string{a}})
	require.NoError(t, err)

	assert.Contains(t, first.Snapshots[a].Analysis.Definitions[0].Expression, "1")
	assert.Contains(t, second.Snapshots[a].Analysis.Definitions[0].Expression, "2")
}

func TestSession_RetainedResultsKeepCanonicalOwnership(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ts", `export const user = model.define({});`)
	b := writeFile(t, dir, "b.ts", `export const other = model.define({});`)

	s, _ := buildSession(t, dir, []string{"a.ts", "b.ts"})

	writeFile(t, dir, "b.ts", `export const other = model.define({ v: 2 });`)
	state, err := s.Update(context.Background(), Changeset{Modified: []string{b}})
	require.NoError(t, err)

	var all []evaluator.Definition
	for _, result := range state.Evaluation {
		all = append(all, result.Definitions...)
	}
	seen := make(map[string]bool)
	for _, def := range all {
		assert.False(t, seen[def.CanonicalID], "duplicate canonical id %s", def.CanonicalID)
		seen[def.CanonicalID] = true
	}
	assert.True(t, seen[a+"::user"])
	assert.True(t, seen[b+"::other"])
}
