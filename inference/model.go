// Package inference implements the batched-inference scheduler and
// result cache that sit between the search tree and a neural-network
// model backend.
package inference

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Layout names the feature-tensor packing a model expects.
type Layout string

// Recognized layouts.
const (
	NHWC Layout = "nhwc"
	NCHW Layout = "nchw"
)

// Model is the engine's sole contract with a neural-network backend:
// given a batch of feature tensors, return a batch of (policy, value)
// outputs. The engine never knows about TensorFlow, TensorRT, or TPUs;
// concrete backends are external collaborators that implement this
// interface.
type Model interface {
	// RunMany evaluates every tensor in inputs and returns one Output per
	// input, in the same order. It is synchronous and safe to call from
	// multiple goroutines concurrently (the scheduler is the only allowed
	// caller in this module, but the interface itself makes no stronger
	// promise than per-call thread safety).
	RunMany(inputs []tensor.Tensor) ([]Output, error)

	// Name identifies the model for cache fingerprinting and logging.
	Name() string

	// Layout reports the feature packing this model expects.
	Layout() Layout
}

// Output is one inference result: a policy distribution over board
// points plus Pass, and a value in [-1,1] from the current mover's
// perspective.
type Output struct {
	Policy []float32
	Value  float32
}

// ModelMetadata is the JSON blob embedded in a model file's header.
type ModelMetadata struct {
	Engine        string `json:"engine"`
	InputFeatures string `json:"input_features"`
	InputLayout   Layout `json:"input_layout"`
	BoardSize     int    `json:"board_size"`
}

// modelMagic is the 8-byte container magic every model file begins with.
var modelMagic = [8]byte{'<', 'm', 'i', 'n', 'i', 'g', 'o', '>'}

// ErrMalformedModel is returned by LoadMetadata for a file that doesn't
// begin with the expected container header.
var ErrMalformedModel = errors.New("inference: malformed model file")

// LoadMetadata reads a model file's container header — 8-byte magic,
// uint64 version, uint64 total file size, uint64 metadata length,
// followed by that many bytes of JSON metadata — and returns the parsed
// ModelMetadata without touching the backend-specific bytes that follow.
func LoadMetadata(r io.Reader) (ModelMetadata, error) {
	var meta ModelMetadata

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return meta, errors.Wrap(err, "inference: reading model magic")
	}
	if magic != modelMagic {
		return meta, errors.Wrapf(ErrMalformedModel, "magic %q", magic)
	}

	var version, fileSize, metadataSize uint64
	for _, field := range []*uint64{&version, &fileSize, &metadataSize} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return meta, errors.Wrap(err, "inference: reading model header")
		}
	}
	if version != 1 {
		return meta, errors.Wrapf(ErrMalformedModel, "unsupported version %d", version)
	}

	blob := make([]byte, metadataSize)
	if _, err := io.ReadFull(r, blob); err != nil {
		return meta, errors.Wrap(err, "inference: reading model metadata blob")
	}
	if err := json.Unmarshal(blob, &meta); err != nil {
		return meta, errors.Wrap(err, "inference: parsing model metadata JSON")
	}
	return meta, nil
}

// RandomModel is a deterministic, network-free Model, the in-scope
// analogue of original_source/cc/dual_net/random_dual_net.h: it produces
// reproducible pseudo-random (policy, value) pairs from a seed, useful
// for exercising the engine and its tests without real weights.
type RandomModel struct {
	name        string
	actionSpace int

	mu  sync.Mutex // guards rng, which is not safe for concurrent use
	rng *rand.Rand
}

// NewRandomModel returns a RandomModel for an N*N+1-action board, seeded
// deterministically. Per spec.md §6, its descriptor is "random:<seed>".
func NewRandomModel(actionSpace int, seed int64) *RandomModel {
	return &RandomModel{
		name:        "random",
		actionSpace: actionSpace,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Name implements Model.
func (m *RandomModel) Name() string { return m.name }

// Layout implements Model.
func (m *RandomModel) Layout() Layout { return NHWC }

// RunMany implements Model, returning a normalized random policy and a
// value in [-1,1] for each input.
func (m *RandomModel) RunMany(inputs []tensor.Tensor) ([]Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outputs := make([]Output, len(inputs))
	for i := range inputs {
		policy := make([]float32, m.actionSpace)
		var sum float32
		for a := range policy {
			v := m.rng.Float32()
			policy[a] = v
			sum += v
		}
		for a := range policy {
			policy[a] /= sum
		}
		outputs[i] = Output{
			Policy: policy,
			Value:  m.rng.Float32()*2 - 1,
		}
	}
	return outputs, nil
}
