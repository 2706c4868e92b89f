package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/filament/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestApp() *App {
	return NewApp(pipeline.DefaultSettings(), nil)
}

func TestEvaluateCrossExample(t *testing.T) {
	source, err := os.ReadFile("../../examples/cross.fil")
	require.NoError(t, err)

	result := newTestApp().Evaluate(t.Context(), string(source))
	require.Empty(t, result.Errors)

	// 4 cross endpoints + the crossing + 3 triangle corners.
	assert.Len(t, result.Vertices, 8)
	require.Len(t, result.Clusters, 2)

	sizes := []int{len(result.Clusters[0].Edges), len(result.Clusters[1].Edges)}
	assert.ElementsMatch(t, []int{4, 3}, sizes)
	assert.Equal(t, 1, result.Stats.EdgeEdge)
	assert.NotEmpty(t, result.PairID)

	for _, c := range result.Clusters {
		for _, e := range c.Edges {
			assert.NotEqual(t, e[0], e[1])
			assert.Less(t, e[0], len(result.Vertices))
			assert.Less(t, e[1], len(result.Vertices))
		}
	}
}

func TestBuildGridExample(t *testing.T) {
	f, err := os.Open("../../examples/grid.yaml")
	require.NoError(t, err)
	defer f.Close()

	paths, err := readPaths(f)
	require.NoError(t, err)
	require.Equal(t, 6, paths.Len())

	result := newTestApp().Build(t.Context(), paths)
	require.Empty(t, result.Errors)

	assert.Equal(t, 9, result.Stats.EdgeEdge)
	assert.Len(t, result.Vertices, 21)
	require.Len(t, result.Clusters, 1)
	assert.Len(t, result.Clusters[0].Edges, 24)
}

func TestEvaluateEmptySource(t *testing.T) {
	result := newTestApp().Evaluate(t.Context(), "")

	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Clusters)
	// Slices stay non-nil so the encoded output lists them explicitly.
	assert.NotNil(t, result.Vertices)
	assert.NotNil(t, result.Clusters)
}

func TestEvaluateSyntaxError(t *testing.T) {
	result := newTestApp().Evaluate(t.Context(), "(+ 1 2)\n(path (vec3 0 0 0)")

	require.NotEmpty(t, result.Errors)
	assert.NotEmpty(t, result.Errors[0].Message)
	assert.Empty(t, result.Clusters)
}

func TestEvaluateWarnsOnSkippedPaths(t *testing.T) {
	source := `
(path (vec3 0 0 0) (vec3 1 0 0))
(path (vec3 5 5 5))
`
	result := newTestApp().Evaluate(t.Context(), source)
	require.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Stats.Skipped)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "skipped")
	assert.Len(t, result.Clusters, 1)
}

func TestEvaluateScriptOverridesSettings(t *testing.T) {
	// The triangle closes only because the script asks for closed loops.
	source := `
(path (vec3 0 0 0) (vec3 1 0 0) (vec3 1 1 0))
(pipeline :closed-loop true :refine true)
`
	result := newTestApp().Evaluate(t.Context(), source)
	require.Empty(t, result.Errors)
	require.Len(t, result.Clusters, 1)
	assert.Len(t, result.Clusters[0].Edges, 2)
	assert.Equal(t, 1, result.Stats.DroppedEdges)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths, err := readPaths(strings.NewReader("paths:\n  - points: [[0,0,0],[1,0,0]]\n"))
	require.NoError(t, err)

	result := newTestApp().Build(ctx, paths)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "cancelled")
}

func TestReadPaths(t *testing.T) {
	paths, err := readPaths(strings.NewReader(`
paths:
  - points: [[0, 0, 0], [1, 2, 3]]
  - points: [[0, 0, 0], [1, 0, 0], [1, 1, 0]]
    closed: true
`))
	require.NoError(t, err)
	require.Equal(t, 2, paths.Len())

	first := paths.At(0)
	require.Equal(t, 2, first.NumIn())
	assert.Equal(t, 3.0, first.In[1].Position.Z)
	assert.False(t, first.HasTag(pipeline.TagClosed))
	assert.True(t, paths.At(1).HasTag(pipeline.TagClosed))
	assert.Equal(t, 1, paths.At(1).IOIndex)

	_, err = readPaths(strings.NewReader(""))
	assert.ErrorIs(t, err, errNoPaths)
	_, err = readPaths(strings.NewReader("paths: []\n"))
	assert.ErrorIs(t, err, errNoPaths)
	_, err = readPaths(strings.NewReader("paths: {nope"))
	assert.Error(t, err)
}

func TestWriteResultRoundTrips(t *testing.T) {
	res := newBuildResult()
	res.Vertices = append(res.Vertices, VertexData{Key: 7, Position: [3]float64{1, 2, 3}})
	res.Clusters = append(res.Clusters, ClusterData{Index: 0, Edges: [][2]int{{0, 0}}})

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, res))

	var back BuildResult
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, res.Vertices, back.Vertices)
	assert.Equal(t, res.Clusters, back.Clusters)
}

func TestBuildCommand(t *testing.T) {
	t.Setenv("FILAMENT_LOG_LEVEL", "error")
	out := filepath.Join(t.TempDir(), "out.yaml")

	cmd := newBuildCmd()
	cmd.SetArgs([]string{"--input", "../../examples/grid.yaml", "--out", out, "--refine"})
	require.NoError(t, cmd.Execute())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var res BuildResult
	require.NoError(t, yaml.Unmarshal(raw, &res))
	require.Len(t, res.Clusters, 1)
	// The grid has 21 vertices, so its spanning tree keeps 20 edges.
	assert.Len(t, res.Clusters[0].Edges, 20)
}

func TestBuildCommandRequiresOneSource(t *testing.T) {
	cmd := newBuildCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())

	cmd = newBuildCmd()
	cmd.SetArgs([]string{"--input", "a.yaml", "--script", "b.fil"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
