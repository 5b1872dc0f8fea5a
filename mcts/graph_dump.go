package mcts

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// DumpGraph renders the reachable portion of the tree's arena (starting
// from the root) as a Graphviz DOT document, labeling each node with its
// arena id, total visit count, and expanded flag, and each edge with its
// action index, visit count, and prior. It exists purely for offline
// debugging of a stuck or misbehaving search; search itself never calls
// it, only Player.DumpGraph does.
func (t *Tree) DumpGraph() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := gographviz.NewGraph()
	if err := g.SetName("tree"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	visited := make(map[nodeID]bool)
	var walk func(id nodeID) error
	walk = func(id nodeID) error {
		if visited[id] {
			return nil
		}
		visited[id] = true

		node := &t.arena[id]
		var totalN int32
		for _, n := range node.n {
			totalN += n
		}
		name := fmt.Sprintf("n%d", id)
		label := fmt.Sprintf("\"#%d visits=%d expanded=%v\"", id, totalN, node.expanded)
		if err := g.AddNode("tree", name, map[string]string{"label": label}); err != nil {
			return err
		}

		for a, child := range node.children {
			if !child.isValid() {
				continue
			}
			if err := walk(child); err != nil {
				return err
			}
			childName := fmt.Sprintf("n%d", child)
			edgeLabel := fmt.Sprintf("\"a=%d N=%d P=%.3f\"", a, node.n[a], node.p[a])
			if err := g.AddEdge(name, childName, true, map[string]string{"label": edgeLabel}); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(t.root); err != nil {
		return "", err
	}
	return g.String(), nil
}
