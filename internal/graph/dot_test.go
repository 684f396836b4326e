package graph

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dotNow = func() time.Time {
	return time.Date(2024, 11, 15, 10, 30, 0, 0, time.UTC)
}

func TestWriteDOTGolden(t *testing.T) {
	g, err := Load(context.Background(), chainStore(t), quietLoadOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf, DOTOptions{
		Title: "assembly chain",
		Now:   dotNow,
	}))

	gold := goldie.New(t)
	gold.Assert(t, "chain_dot", buf.Bytes())
}

func TestWriteDOTIgnoreCmds(t *testing.T) {
	g, err := Load(context.Background(), chainStore(t), quietLoadOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf, DOTOptions{
		IgnoreCmds: []string{"align"},
		Now:        dotNow,
	}))

	out := buf.String()
	assert.NotContains(t, out, `"align"`)
	assert.Contains(t, out, `"assemble"`)
	// Edges incident to the ignored step disappear with it.
	assert.NotContains(t, out, `label="outBam"`)
	assert.Contains(t, out, `label="inBam"`)
}

func TestWriteDOTIgnoreExts(t *testing.T) {
	g, err := Load(context.Background(), chainStore(t), quietLoadOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf, DOTOptions{
		IgnoreExts: []string{".fasta"},
		Now:        dotNow,
	}))

	out := buf.String()
	assert.NotContains(t, out, "f2.fasta")
	assert.Contains(t, out, "f1.bam")
}

func TestWriteDOTNodeSubset(t *testing.T) {
	g, err := Load(context.Background(), chainStore(t), quietLoadOptions())
	require.NoError(t, err)

	nodes := map[NodeID]bool{
		StepNodeID("sB"):    true,
		FileNodeID(fid(f1)): true,
		FileNodeID(fid(f2)): true,
	}
	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf, DOTOptions{Nodes: nodes, Now: dotNow}))

	out := buf.String()
	assert.NotContains(t, out, `"align"`)
	assert.Contains(t, out, `"assemble"`)
	assert.Contains(t, out, "f1.bam")
}
