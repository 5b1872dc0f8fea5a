package mcts

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/deepgo/deepgo/board"
)

// Config configures one search tree.
type Config struct {
	PUCT              float32 `json:"puct"`
	ValueInitPenalty  float32 `json:"value_init_penalty"`
	MaxDepth          int     `json:"max_depth"`
	DirichletAlpha    float64 `json:"dirichlet_alpha"`
	DirichletFraction float64 `json:"dirichlet_fraction"`
	RandomSeed        int64   `json:"random_seed"`
}

// DefaultConfig mirrors the teacher's DefaultConfig idiom, filled in with
// the constants original_source/cc/mcts_player.h ships as defaults.
func DefaultConfig() Config {
	return Config{
		PUCT:              1.1,
		ValueInitPenalty:  2.0,
		MaxDepth:          1000,
		DirichletAlpha:    0.03,
		DirichletFraction: 0.25,
	}
}

// IsValid reports whether the configuration is usable.
func (c Config) IsValid() bool {
	return c.PUCT > 0 && c.MaxDepth > 0 &&
		c.DirichletAlpha > 0 && c.DirichletFraction >= 0 && c.DirichletFraction <= 1
}

// Tree is a single search tree: an arena of Nodes addressed by nodeID,
// a PUCT-driven selection routine, and virtual-loss-aware backup. Per
// spec.md's determinism/concurrency model, a single mutex serializes
// selection and backup; inference happens entirely outside the lock.
type Tree struct {
	mu sync.Mutex

	Config
	n           int // board size
	actionSpace int

	arena []Node
	free  []nodeID
	root  nodeID

	rng *distrand.Rand
}

// NewTree constructs a tree rooted at pos.
func NewTree(pos *board.Position, conf Config) (*Tree, error) {
	if !conf.IsValid() {
		return nil, errors.New("mcts: invalid config")
	}
	seed := conf.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	t := &Tree{
		Config:      conf,
		n:           pos.N,
		actionSpace: pos.ActionSpace(),
		arena:       make([]Node, 0, 4096),
		rng:         distrand.New(distrand.NewSource(uint64(seed))),
	}
	t.root = t.newNodeFor(nilNode, -1, pos)
	return t, nil
}

// Root returns the root node's id.
func (t *Tree) Root() nodeID { return t.root }

// Position returns the board position at id.
func (t *Tree) Position(id nodeID) *board.Position { return t.arena[id].pos }

// IsExpanded reports whether id has had priors installed.
func (t *Tree) IsExpanded(id nodeID) bool { return t.arena[id].expanded }

// IsGameOver reports whether id is a terminal position.
func (t *Tree) IsGameOver(id nodeID) bool { return t.arena[id].gameOver }

// RootVisits returns a copy of the root's per-action visit counts, used
// by the player to pick a move.
func (t *Tree) RootVisits() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.arena[t.root].visits()
}

// ActionSpace returns N*N+1.
func (t *Tree) ActionSpace() int { return t.actionSpace }

// BoardSize returns N.
func (t *Tree) BoardSize() int { return t.n }

// RootValue returns the root's mean value estimate, from the root
// mover's perspective, used by the player's resign check.
func (t *Tree) RootValue() float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.arena[t.root].meanValue()
}

func (t *Tree) newNodeFor(parent nodeID, action int, pos *board.Position) nodeID {
	id := t.alloc()
	*(&t.arena[id]) = *newNode(parent, action, pos, t.actionSpace)
	return id
}

// alloc returns a node from the freelist, or grows the arena.
func (t *Tree) alloc() nodeID {
	if l := len(t.free); l > 0 {
		id := t.free[l-1]
		t.free = t.free[:l-1]
		return id
	}
	t.arena = append(t.arena, Node{})
	return nodeID(len(t.arena) - 1)
}

// freeNode returns id to the freelist, clearing its Node so stale references
// don't leak a Position or edge arrays.
func (t *Tree) freeNode(id nodeID) {
	t.arena[id].reset()
	t.free = append(t.free, id)
}

// freeSubtree recursively frees id and every descendant it owns.
func (t *Tree) freeSubtree(id nodeID) {
	node := &t.arena[id]
	for _, c := range node.children {
		if c.isValid() {
			t.freeSubtree(c)
		}
	}
	t.freeNode(id)
}

// coordForAction maps an action index to a board coordinate; the last
// action is always Pass.
func (t *Tree) coordForAction(a int) board.Coord {
	if a == t.n*t.n {
		return board.PassMove
	}
	return board.Coord(a)
}

// actionForCoord is the inverse of coordForAction.
func (t *Tree) actionForCoord(c board.Coord) int {
	if c == board.PassMove {
		return t.n * t.n
	}
	return int(c)
}

// dirichletNoise draws one sample from Dir(alpha, ..., alpha) over dim
// dimensions.
func (t *Tree) dirichletNoise(dim int, alpha float64) []float64 {
	a := make([]float64, dim)
	for i := range a {
		a[i] = alpha
	}
	dist := distmv.NewDirichlet(a, t.rng)
	return dist.Rand(nil)
}
