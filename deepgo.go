// Package deepgo is the entry point: it wires a board position, a
// search tree, a feature builder, and a Model behind one Engine, the
// in-scope analogue of agogo.go's AZ, trimmed of self-play training.
package deepgo

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/deepgo/deepgo/board"
	"github.com/deepgo/deepgo/inference"
	"github.com/deepgo/deepgo/mcts"
)

const metaFile = "meta.json"

// Config is player-visible configuration: every option spec.md's
// §6 table names, plus the board size the engine plays on.
type Config struct {
	BoardSize int     `json:"board_size"`
	Komi      float64 `json:"komi"`

	NumReadouts      int     `json:"num_readouts"`
	VirtualLosses    int     `json:"virtual_losses"`
	ValueInitPenalty float32 `json:"value_init_penalty"`
	ResignThreshold  float32 `json:"resign_threshold"`

	InjectNoise    bool `json:"inject_noise"`
	SoftPick       bool `json:"soft_pick"`
	RandomSymmetry bool `json:"random_symmetry"`
	TreeReuse      bool `json:"tree_reuse"`

	SecondsPerMove float64 `json:"seconds_per_move"`
	TimeLimit      float64 `json:"time_limit"`
	DecayFactor    float64 `json:"decay_factor"`

	CacheSizeMB int   `json:"cache_size_mb"`
	RandomSeed  int64 `json:"random_seed"`

	PUCT     float32 `json:"puct"`
	MaxDepth int     `json:"max_depth"`

	Workers   int `json:"workers"`
	BatchSize int `json:"batch_size"`
}

// DefaultConfig mirrors original_source/cc/mcts_player.h's Options
// defaults, extended with the spec's board/cache/time-control knobs.
func DefaultConfig() Config {
	return Config{
		BoardSize:        19,
		Komi:             7.5,
		NumReadouts:      800,
		VirtualLosses:    8,
		ValueInitPenalty: 2.0,
		ResignThreshold:  -0.9,
		InjectNoise:      true,
		SoftPick:         true,
		RandomSymmetry:   true,
		TreeReuse:        true,
		CacheSizeMB:      128,
		PUCT:             1.1,
		MaxDepth:         1000,
		Workers:          2,
		BatchSize:        8,
	}
}

// IsValid reports whether conf is usable.
func (c Config) IsValid() bool {
	return c.BoardSize > 0 && c.NumReadouts > 0 && c.VirtualLosses > 0 &&
		c.CacheSizeMB > 0 && c.Workers > 0 && c.BatchSize > 0
}

func (c Config) mctsConfig() mcts.Config {
	return mcts.Config{
		PUCT:              c.PUCT,
		ValueInitPenalty:  c.ValueInitPenalty,
		MaxDepth:          c.MaxDepth,
		DirichletAlpha:    0.03,
		DirichletFraction: 0.25,
		RandomSeed:        c.RandomSeed,
	}
}

// MetaData is the JSON sidecar persisted alongside a model, the
// in-scope analogue of agogo.go's MetaData (dropped NNConf, since NN
// weights are an external collaborator here, kept the engine config).
type MetaData struct {
	Config    Config                  `json:"config"`
	ModelMeta inference.ModelMetadata `json:"model_meta"`
}

// Engine is the top-level object: a Model collaborator plus the shared
// scheduler and cache every Player spawned from it draws on. One Engine
// typically backs many concurrent games against the same weights.
type Engine struct {
	Config
	Model   inference.Model
	factory *inference.BatchingFactory
	cache   *inference.InferenceCache
}

// NewEngine constructs an Engine around model, sized per conf.
func NewEngine(model inference.Model, conf Config) (*Engine, error) {
	if !conf.IsValid() {
		return nil, errors.New("deepgo: invalid config")
	}
	actionSpace := conf.BoardSize*conf.BoardSize + 1
	return &Engine{
		Config:  conf,
		Model:   model,
		factory: inference.NewBatchingFactory(conf.Workers, conf.BatchSize),
		cache:   inference.NewInferenceCache(conf.CacheSizeMB, actionSpace),
	}, nil
}

// NewGame starts a fresh Player from an empty board.
func (e *Engine) NewGame() (*Player, error) {
	return e.NewGameFrom(board.NewPosition(e.BoardSize))
}

// NewGameFrom starts a Player rooted at pos.
func (e *Engine) NewGameFrom(pos *board.Position) (*Player, error) {
	tree, err := mcts.NewTree(pos, e.mctsConfig())
	if err != nil {
		return nil, errors.Wrap(err, "deepgo: constructing search tree")
	}
	bm := e.factory.Acquire(e.Model)
	return &Player{
		Config:  e.Config,
		tree:    tree,
		model:   bm,
		cache:   e.cache,
		factory: e.factory,
	}, nil
}

// Close releases every Player's hold on the shared scheduler.
func (e *Engine) Close() error {
	return e.factory.Shutdown()
}

// Save persists conf and the model's declared metadata under dirName.
func (e *Engine) Save(dirName string, modelMeta inference.ModelMetadata) error {
	if err := os.MkdirAll(dirName, 0755); err != nil {
		return errors.WithStack(err)
	}
	meta := MetaData{Config: e.Config, ModelMeta: modelMeta}
	blob, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(ioutil.WriteFile(filepath.Join(dirName, metaFile), blob, 0644))
}

// LoadMetaData reads back the MetaData Save wrote.
func LoadMetaData(dirName string) (MetaData, error) {
	var meta MetaData
	blob, err := ioutil.ReadFile(filepath.Join(dirName, metaFile))
	if err != nil {
		return meta, errors.WithStack(err)
	}
	if err := json.Unmarshal(blob, &meta); err != nil {
		return meta, errors.WithStack(err)
	}
	return meta, nil
}
