package mcts

import (
	"github.com/chewxy/math32"

	"github.com/deepgo/deepgo/board"
)

// Node is one position in a search tree's arena. Each node owns the edge
// statistics for every action leading out of it; a child only exists
// (has a valid nodeID in children) once that edge has actually been
// traversed by a SelectLeaf walk. Unlike the teacher's Node, which tracks
// a single running Q(s,a) per child and has no virtual loss (it has no
// concurrent search), this Node keeps per-action N/W/P/VL arrays so a
// path can be selected, virtual-lossed, and later backed up independently
// of any network round trip.
type Node struct {
	parent           nodeID
	actionFromParent int // index into parent's edge arrays, -1 for the root

	pos      *board.Position
	expanded bool
	gameOver bool
	noised   bool

	legal []bool // length actionSpace; true if the action is a legal move here

	n  []int32   // visit count per action, N(s,a)
	w  []float32 // summed value per action, W(s,a)
	p  []float32 // prior probability per action, P(s,a)
	vl []int32   // virtual loss per action

	children []nodeID
}

func newNode(parent nodeID, actionFromParent int, pos *board.Position, actionSpace int) *Node {
	node := &Node{
		parent:           parent,
		actionFromParent: actionFromParent,
		pos:              pos,
		gameOver:         pos.Ended(),
		legal:            make([]bool, actionSpace),
		n:                make([]int32, actionSpace),
		w:                make([]float32, actionSpace),
		p:                make([]float32, actionSpace),
		vl:               make([]int32, actionSpace),
		children:         make([]nodeID, actionSpace),
	}
	for a := range node.children {
		node.children[a] = nilNode
	}
	passAction := actionSpace - 1
	for a := 0; a < passAction; a++ {
		node.legal[a] = pos.IsMoveLegal(pos.ToPlay(), board.Coord(a))
	}
	node.legal[passAction] = true
	return node
}

func (nd *Node) reset() { *nd = Node{} }

// meanValue is this node's own value estimate, the visit-weighted mean
// over its children, used as the un-visited-child Q baseline.
func (nd *Node) meanValue() float32 {
	var totalN int32
	var totalW float32
	for a := range nd.n {
		totalN += nd.n[a]
		totalW += nd.w[a]
	}
	if totalN == 0 {
		return 0
	}
	return totalW / float32(totalN)
}

// qsa returns Q(s,a), the mover's-perspective value estimate for an edge,
// net of virtual loss: (W[a]-VL[a]) / max(1, N[a]+VL[a]).
func (nd *Node) qsa(a int, valueInitPenalty, toPlaySign float32) float32 {
	eff := nd.n[a] + nd.vl[a]
	if eff == 0 {
		return clamp(nd.meanValue()-valueInitPenalty*toPlaySign, -1, 1)
	}
	denom := eff
	if denom < 1 {
		denom = 1
	}
	return (nd.w[a] - float32(nd.vl[a])) / float32(denom)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// selectAction applies PUCT over legal actions:
//   U(a) = Q(a) + cPUCT * P(a) * sqrt(ΣeffN) / (1 + effN(a))
// where effN(a) = N[a] + VL[a], and returns the highest-scoring action,
// breaking ties by the lowest action index (the stable tie-break
// spec requires).
func (nd *Node) selectAction(cPUCT, valueInitPenalty float32) int {
	toPlaySign := nd.pos.ToPlay().Sign()

	var totalEff int32
	for a := range nd.n {
		if nd.legal[a] {
			totalEff += nd.n[a] + nd.vl[a]
		}
	}
	sqrtTotal := math32.Sqrt(float32(totalEff))

	best := -1
	var bestScore float32
	for a := range nd.legal {
		if !nd.legal[a] {
			continue
		}
		eff := nd.n[a] + nd.vl[a]
		q := nd.qsa(a, valueInitPenalty, toPlaySign)
		u := q + cPUCT*nd.p[a]*sqrtTotal/(1+float32(eff))
		if best == -1 || u > bestScore {
			best = a
			bestScore = u
		}
	}
	return best
}

// visits returns a copy of the raw visit counts for every action, used by
// the player to pick a move from the root.
func (nd *Node) visits() []int32 {
	out := make([]int32, len(nd.n))
	copy(out, nd.n)
	return out
}
