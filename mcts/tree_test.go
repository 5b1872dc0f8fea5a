package mcts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgo/deepgo/board"
)

func uniformPolicy(actionSpace int) []float32 {
	p := make([]float32, actionSpace)
	v := float32(1) / float32(actionSpace)
	for i := range p {
		p[i] = v
	}
	return p
}

func TestSelectLeafFromFreshRootIsTheRootItself(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, tree.Root(), leaf)
	assert.False(t, tree.IsExpanded(leaf))
}

func TestIncorporateResultsExpandsRootWithoutBackup(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	tree.AddVirtualLoss(path)
	require.NoError(t, tree.IncorporateResults(path, leaf, uniformPolicy(tree.ActionSpace()), 0.5))

	assert.True(t, tree.IsExpanded(leaf))

	visits := tree.RootVisits()
	var total int32
	for _, v := range visits {
		total += v
	}
	assert.Equal(t, int32(0), total, "incorporating the root's own expansion has no path to back up")
}

func TestSelectThenIncorporateUpdatesParentEdge(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	// Expand the root first.
	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path, leaf, uniformPolicy(tree.ActionSpace()), 0))

	// Now selection descends one level into a child.
	path2, leaf2, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.Len(t, path2, 1)
	assert.Equal(t, tree.Root(), path2[0].Node)
	assert.NotEqual(t, tree.Root(), leaf2)

	tree.AddVirtualLoss(path2)
	for _, step := range path2 {
		assert.Equal(t, int32(1), tree.arena[step.Node].vl[step.Action])
	}
	require.NoError(t, tree.IncorporateResults(path2, leaf2, uniformPolicy(tree.ActionSpace()), 0.3))

	visits := tree.RootVisits()
	assert.Equal(t, int32(1), visits[path2[0].Action])
	for _, step := range path2 {
		assert.Equal(t, int32(0), tree.arena[step.Node].vl[step.Action])
	}
}

func TestVirtualLossConservation(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path, leaf, uniformPolicy(tree.ActionSpace()), 0))

	path2, leaf2, err := tree.SelectLeaf()
	require.NoError(t, err)
	tree.AddVirtualLoss(path2)
	require.NoError(t, tree.IncorporateResults(path2, leaf2, uniformPolicy(tree.ActionSpace()), 0.1))

	var sumVL int32
	for i := range tree.arena {
		for _, vl := range tree.arena[i].vl {
			sumVL += vl
		}
	}
	assert.Equal(t, int32(0), sumVL)
}

func TestDumpGraphRendersReachableNodes(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path, leaf, uniformPolicy(tree.ActionSpace()), 0))

	path2, leaf2, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path2, leaf2, uniformPolicy(tree.ActionSpace()), 0.1))

	dot, err := tree.DumpGraph()
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, fmt.Sprintf("n%d", tree.Root()))
	assert.Contains(t, dot, fmt.Sprintf("n%d", leaf2))
}

func TestInjectDirichletNoiseRequiresExpandedRoot(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)
	assert.Error(t, tree.InjectDirichletNoise())

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path, leaf, uniformPolicy(tree.ActionSpace()), 0))
	assert.NoError(t, tree.InjectDirichletNoise())

	var sum float32
	root := &tree.arena[tree.root]
	for a, legal := range root.legal {
		if legal {
			sum += root.p[a]
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestPruneToChildDestroysSiblings(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path, leaf, uniformPolicy(tree.ActionSpace()), 0))

	// Give the root two children: the virtual loss on action 0 steers the
	// second selection to action 1.
	path0, _, err := tree.SelectLeaf()
	require.NoError(t, err)
	tree.AddVirtualLoss(path0)
	path1, sibling, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.Equal(t, 0, path0[0].Action)
	require.Equal(t, 1, path1[0].Action)

	oldRoot := tree.Root()
	require.NoError(t, tree.PruneToChild(board.Coord(0), true))
	assert.NotEqual(t, oldRoot, tree.Root())
	assert.Equal(t, board.Coord(0), tree.Position(tree.Root()).LastMove())
	assert.Contains(t, tree.free, sibling, "the sibling at action 1 was not freed")
	assert.Nil(t, tree.arena[sibling].pos)
}

func TestPruneToChildWithoutReuseDiscardsSearchedStats(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path, leaf, uniformPolicy(tree.ActionSpace()), 0))

	path2, leaf2, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path2, leaf2, uniformPolicy(tree.ActionSpace()), 0.2))

	require.NoError(t, tree.PruneToChild(board.Coord(0), false))
	assert.Equal(t, board.Coord(0), tree.Position(tree.Root()).LastMove())
	assert.False(t, tree.IsExpanded(tree.Root()))
	for _, v := range tree.RootVisits() {
		assert.Equal(t, int32(0), v)
	}
}

func TestIncorporateEndGameResultRequiresTerminal(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	assert.Error(t, tree.IncorporateEndGameResult(path, leaf, 1))
}

func TestIncorporateMaxDepthResultBacksUpNonTerminalLeaf(t *testing.T) {
	pos := board.NewPosition(9)
	tree, err := NewTree(pos, DefaultConfig())
	require.NoError(t, err)

	path, leaf, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.NoError(t, tree.IncorporateResults(path, leaf, uniformPolicy(tree.ActionSpace()), 0))

	path2, leaf2, err := tree.SelectLeaf()
	require.NoError(t, err)
	require.False(t, tree.IsGameOver(leaf2), "a max-depth leaf is an ordinary in-progress position")

	tree.AddVirtualLoss(path2)
	require.NoError(t, tree.IncorporateMaxDepthResult(path2, leaf2, 1))

	visits := tree.RootVisits()
	assert.Equal(t, int32(1), visits[path2[0].Action])
	for i := range tree.arena {
		for _, vl := range tree.arena[i].vl {
			assert.Equal(t, int32(0), vl)
		}
	}
}
