// Package features builds neural-network input tensors from board history
// and implements the dihedral symmetry transforms applied to them.
package features

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/deepgo/deepgo/board"
)

// HistoryPlies is the number of prior positions (beyond the current one)
// folded into the feature tensor.
const HistoryPlies = 7

// Planes is the total plane count: 2 per ply (mine, theirs) across the
// current position and HistoryPlies prior ones, plus one to-play plane.
const Planes = 2*(HistoryPlies+1) + 1

// BuildFeatures converts history into a [N,N,Planes] float32 tensor.
// history[0] must be the current position; history[1:] are progressively
// older ancestors (history[1] is the position one move before history[0],
// and so on). Planes 0..15 alternate "mine" and "theirs" stone masks,
// relative to history[0]'s side to play, across the current position and
// its seven predecessors; positions beyond len(history) are zero-filled.
// Plane 16 is all-ones if Black is to play, all-zeros if White.
func BuildFeatures(history []*board.Position) (tensor.Tensor, error) {
	if len(history) == 0 {
		return nil, errors.New("features: empty history")
	}
	cur := history[0]
	n := cur.N
	mine := cur.ToPlay()
	theirs := mine.Opponent()

	t := tensor.New(tensor.WithShape(n, n, Planes), tensor.Of(tensor.Float32))

	for ply := 0; ply <= HistoryPlies; ply++ {
		minePlane, theirsPlane := 2*ply, 2*ply+1
		if ply >= len(history) || history[ply] == nil {
			continue
		}
		pos := history[ply]
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				c := pos.At(board.Coord(y*n + x))
				if c == mine {
					if err := t.SetAt(float32(1), y, x, minePlane); err != nil {
						return nil, errors.Wrap(err, "features: writing mine plane")
					}
				} else if c == theirs {
					if err := t.SetAt(float32(1), y, x, theirsPlane); err != nil {
						return nil, errors.Wrap(err, "features: writing theirs plane")
					}
				}
			}
		}
	}

	toPlayValue := float32(0)
	if mine == board.Black {
		toPlayValue = 1
	}
	toPlayPlane := 2 * (HistoryPlies + 1)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if err := t.SetAt(toPlayValue, y, x, toPlayPlane); err != nil {
				return nil, errors.Wrap(err, "features: writing to-play plane")
			}
		}
	}

	return t, nil
}

// HistoryFrom walks a position's parent chain and returns up to
// HistoryPlies+1 positions, newest first, suitable for BuildFeatures.
func HistoryFrom(cur *board.Position) []*board.Position {
	history := make([]*board.Position, 0, HistoryPlies+1)
	p := cur
	for i := 0; i <= HistoryPlies && p != nil; i++ {
		history = append(history, p)
		p = p.Parent()
	}
	return history
}
