package features

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Symmetry indexes one of the eight elements of the dihedral group of the
// square: identity, three rotations, and the same four compositions after
// a reflection.
type Symmetry int

// The eight elements of the dihedral group, in the same order original_source
// uses (cc/symmetries.h): rotations 0/90/180/270, then their mirrored
// counterparts.
const (
	Identity Symmetry = iota
	Rotate90
	Rotate180
	Rotate270
	Flip
	FlipRotate90
	FlipRotate180
	FlipRotate270
	numSymmetries
)

// NumSymmetries is the size of the dihedral group applied to the board.
const NumSymmetries = int(numSymmetries)

// IsValid reports whether s names one of the eight symmetries.
func (s Symmetry) IsValid() bool { return s >= 0 && s < numSymmetries }

// coordMap returns the point (x,y) maps to under s, on an n x n board.
func coordMap(s Symmetry, x, y, n int) (int, int) {
	if s >= Flip {
		x = n - 1 - x
		s -= Flip
	}
	switch s {
	case Identity:
		return x, y
	case Rotate90:
		return y, n - 1 - x
	case Rotate180:
		return n - 1 - x, n - 1 - y
	case Rotate270:
		return n - 1 - y, x
	}
	return x, y
}

// ApplySymmetry returns a new tensor with the spatial dims of src permuted
// according to s. src must have shape [N,N,C]; the channel dimension is
// left untouched.
func ApplySymmetry(s Symmetry, src tensor.Tensor) (tensor.Tensor, error) {
	if !s.IsValid() {
		return nil, errors.Errorf("symmetry: invalid symmetry %d", s)
	}
	shape := src.Shape()
	if len(shape) != 3 || shape[0] != shape[1] {
		return nil, errors.Errorf("symmetry: expected shape [N,N,C], got %v", shape)
	}
	n, c := shape[0], shape[2]

	dst := tensor.New(tensor.WithShape(n, n, c), tensor.Of(tensor.Float32))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dx, dy := coordMap(s, x, y, n)
			for k := 0; k < c; k++ {
				v, err := src.At(y, x, k)
				if err != nil {
					return nil, errors.Wrap(err, "symmetry: reading source plane")
				}
				if err := dst.SetAt(v, dy, dx, k); err != nil {
					return nil, errors.Wrap(err, "symmetry: writing destination plane")
				}
			}
		}
	}
	return dst, nil
}

// ApplyToPolicy applies the symmetry s to the board-point portion of a
// policy vector of length N*N+1, the forward counterpart of
// ApplyInverseToPolicy, leaving the trailing pass logit untouched.
func ApplyToPolicy(s Symmetry, n int, policy []float32) ([]float32, error) {
	if !s.IsValid() {
		return nil, errors.Errorf("symmetry: invalid symmetry %d", s)
	}
	if len(policy) != n*n+1 {
		return nil, errors.Errorf("symmetry: expected policy length %d, got %d", n*n+1, len(policy))
	}
	out := make([]float32, len(policy))
	out[n*n] = policy[n*n]
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dx, dy := coordMap(s, x, y, n)
			out[dy*n+dx] = policy[y*n+x]
		}
	}
	return out, nil
}

// ApplyInverseToPolicy undoes the symmetry s applied to the board-point
// portion of a policy vector of length N*N+1, leaving the trailing pass
// logit untouched (the pass move has no spatial position).
func ApplyInverseToPolicy(s Symmetry, n int, policy []float32) ([]float32, error) {
	if !s.IsValid() {
		return nil, errors.Errorf("symmetry: invalid symmetry %d", s)
	}
	if len(policy) != n*n+1 {
		return nil, errors.Errorf("symmetry: expected policy length %d, got %d", n*n+1, len(policy))
	}
	out := make([]float32, len(policy))
	out[n*n] = policy[n*n]
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dx, dy := coordMap(s, x, y, n)
			out[y*n+x] = policy[dy*n+dx]
		}
	}
	return out, nil
}
