package mcts

import (
	"github.com/pkg/errors"

	"github.com/deepgo/deepgo/board"
)

// Step is one traversed edge: the node the edge departs from and the
// action index taken.
type Step struct {
	Node   nodeID
	Action int
}

// Path is the sequence of edges walked from the root to a leaf, in the
// order SelectLeaf() is required to produce: SelectLeaf does not fuse
// expansion or inference into the walk (the teacher's recursive pipeline
// does, since it owns its network call inline) so the caller can batch
// the leaf's inference alongside leaves from unrelated trees before
// calling back into IncorporateResults.
type Path []Step

// Leaf returns the node reached by following the whole path from the
// root; SelectLeaf always builds this node eagerly (even if unexpanded)
// so its Position is available for feature-building.
func (p Path) Leaf(t *Tree) nodeID {
	if len(p) == 0 {
		return t.root
	}
	last := p[len(p)-1]
	return t.arena[last.Node].children[last.Action]
}

// ErrMaxDepth is returned by SelectLeaf when the walk hits MaxDepth
// without reaching an unexpanded or terminal node; callers should back
// this up via IncorporateMaxDepthResult, not IncorporateEndGameResult,
// since deep non-terminal positions can still occur in pathological
// trees and are not gameOver.
var ErrMaxDepth = errors.New("mcts: max depth reached during selection")

// SelectLeaf descends from the root, picking at each node the action
// maximizing PUCT, until it reaches a node that is not yet expanded or
// is terminal. It lazily creates child nodes for newly traversed edges.
func (t *Tree) SelectLeaf() (Path, nodeID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var path Path
	cur := t.root
	for depth := 0; ; depth++ {
		node := &t.arena[cur]
		if !node.expanded || node.gameOver {
			return path, cur, nil
		}
		if depth >= t.MaxDepth {
			return path, cur, ErrMaxDepth
		}

		action := node.selectAction(t.PUCT, t.ValueInitPenalty)
		if action < 0 {
			return path, cur, errors.New("mcts: no legal action at an expanded node")
		}

		child := node.children[action]
		if !child.isValid() {
			childPos, err := node.pos.PlayMove(node.pos.ToPlay(), t.coordForAction(action))
			if err != nil {
				return path, cur, errors.Wrapf(err, "mcts: replaying selected action %d", action)
			}
			child = t.newNodeFor(cur, action, childPos)
			t.arena[cur].children[action] = child
		}

		path = append(path, Step{Node: cur, Action: action})
		cur = child
	}
}

// AddVirtualLoss increments VL on every edge in path by one, discouraging
// other concurrent selections from revisiting the same path while its
// inference is outstanding.
func (t *Tree) AddVirtualLoss(path Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, step := range path {
		t.arena[step.Node].vl[step.Action]++
	}
}

// RevertVirtualLoss is the exact inverse of AddVirtualLoss.
func (t *Tree) RevertVirtualLoss(path Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, step := range path {
		t.arena[step.Node].vl[step.Action]--
	}
}

// IncorporateResults installs a freshly inferred policy and value at
// leaf, then backs the value up the path. policy must have length
// ActionSpace(); it is masked to legal actions and renormalized. value is
// from leaf's mover's perspective. If leaf was already expanded its
// priors are left as they are and only the backup happens; a terminal
// leaf is rejected with an error (use IncorporateEndGameResult).
func (t *Tree) IncorporateResults(path Path, leaf nodeID, policy []float32, value float32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := &t.arena[leaf]
	if len(policy) != len(node.p) {
		return errors.Errorf("mcts: policy length %d, want %d", len(policy), len(node.p))
	}
	if node.gameOver {
		return errors.New("mcts: cannot incorporate a network result at a terminal node")
	}
	if !node.expanded {
		var sum float32
		for a, legal := range node.legal {
			if legal {
				sum += policy[a]
			}
		}
		if sum > 1e-8 {
			for a, legal := range node.legal {
				if legal {
					node.p[a] = policy[a] / sum
				}
			}
		} else {
			var count float32
			for _, legal := range node.legal {
				if legal {
					count++
				}
			}
			for a, legal := range node.legal {
				if legal {
					node.p[a] = 1 / count
				}
			}
		}
		node.expanded = true
	}

	t.backup(path, value)
	return nil
}

// IncorporateEndGameResult backs up a terminal value directly, without a
// network evaluation. scoreSign is ±1 (or 0 for a draw) from leaf's
// mover's perspective.
func (t *Tree) IncorporateEndGameResult(path Path, leaf nodeID, scoreSign float32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.arena[leaf].gameOver {
		return errors.New("mcts: IncorporateEndGameResult called on a non-terminal node")
	}
	t.backup(path, scoreSign)
	return nil
}

// IncorporateMaxDepthResult backs up scoreSign at a leaf SelectLeaf
// returned via ErrMaxDepth. Such a leaf is not gameOver (it is an
// ordinary in-progress position cut off only by MaxDepth), so it backs
// up the same way a terminal leaf does without requiring one.
func (t *Tree) IncorporateMaxDepthResult(path Path, leaf nodeID, scoreSign float32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.backup(path, scoreSign)
	return nil
}

// backup walks path in reverse, updating N/W and reverting the virtual
// loss applied by AddVirtualLoss, alternating the value's sign at every
// level since consecutive plies are played by opposing movers. value is
// from the leaf's mover's perspective, so the edge into the leaf records
// its negation: every edge's W is from the perspective of the mover at
// the node the edge departs from.
func (t *Tree) backup(path Path, value float32) {
	v := -value
	for i := len(path) - 1; i >= 0; i-- {
		step := path[i]
		node := &t.arena[step.Node]
		node.n[step.Action]++
		node.w[step.Action] += v
		node.vl[step.Action]--
		v = -v
	}
}

// InjectDirichletNoise mixes Dirichlet noise into the root's priors over
// its legal actions: P' = (1-frac)*P + frac*Dir(alpha). The root must
// already be expanded.
func (t *Tree) InjectDirichletNoise() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	root := &t.arena[t.root]
	if !root.expanded {
		return errors.New("mcts: root must be expanded before injecting noise")
	}
	if root.noised {
		return nil
	}

	legalActions := make([]int, 0, len(root.legal))
	for a, legal := range root.legal {
		if legal {
			legalActions = append(legalActions, a)
		}
	}
	noise := t.dirichletNoise(len(legalActions), t.DirichletAlpha)
	frac := float32(t.DirichletFraction)
	for i, a := range legalActions {
		root.p[a] = (1-frac)*root.p[a] + frac*float32(noise[i])
	}
	root.noised = true
	return nil
}

// PruneToChild makes the position reached by playing move the new root.
// If reuse is true, the child subtree search already built for that edge
// (its statistics and any grandchildren) becomes the new root, and every
// sibling subtree is destroyed — the usual AlphaZero tree-reuse behavior.
// If reuse is false, the whole subtree rooted at the move (searched
// statistics included) is discarded along with every sibling, and the
// new root is a fresh, unexpanded node for that position: the next
// TreeSearch call starts cold, as if search had never visited it.
func (t *Tree) PruneToChild(move board.Coord, reuse bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	action := t.actionForCoord(move)
	root := &t.arena[t.root]
	if action < 0 || action >= len(root.legal) || !root.legal[action] {
		return errors.Errorf("mcts: %v is not a legal move at the current root", move)
	}

	var childPos *board.Position
	child := root.children[action]
	if child.isValid() {
		childPos = t.arena[child].pos
	} else {
		var err error
		childPos, err = root.pos.PlayMove(root.pos.ToPlay(), move)
		if err != nil {
			return errors.Wrap(err, "mcts: replaying root move for pruning")
		}
	}

	if !reuse {
		if child.isValid() {
			t.freeSubtree(child)
		}
		child = t.newNodeFor(nilNode, -1, childPos)
	} else if !child.isValid() {
		child = t.newNodeFor(t.root, action, childPos)
		root.children[action] = child
	}

	for a, sibling := range root.children {
		if a != action && sibling.isValid() {
			t.freeSubtree(sibling)
		}
	}
	oldRoot := t.root
	t.root = child
	t.arena[child].parent = nilNode
	t.arena[child].actionFromParent = -1
	t.freeNode(oldRoot)
	return nil
}
