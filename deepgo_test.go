package deepgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgo/deepgo/inference"
)

func testConfig() Config {
	conf := DefaultConfig()
	conf.BoardSize = 9
	conf.NumReadouts = 16
	conf.VirtualLosses = 4
	conf.Workers = 1
	conf.BatchSize = 4
	conf.RandomSeed = 7
	conf.InjectNoise = false
	return conf
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	model := inference.NewRandomModel(9*9+1, 1)
	conf := testConfig()
	conf.BoardSize = 0

	_, err := NewEngine(model, conf)
	assert.Error(t, err)
}

func TestEngineNewGamePlaysOneMove(t *testing.T) {
	conf := testConfig()
	model := inference.NewRandomModel(conf.BoardSize*conf.BoardSize+1, 1)

	engine, err := NewEngine(model, conf)
	require.NoError(t, err)
	defer engine.Close()

	player, err := engine.NewGame()
	require.NoError(t, err)
	defer player.Close()

	move, err := player.SuggestMove()
	require.NoError(t, err)

	require.NoError(t, player.PlayMove(move))
	assert.Equal(t, 1, player.Position().MoveNumber())
}

func TestSaveAndLoadMetaDataRoundTrips(t *testing.T) {
	dir := t.TempDir() + "/model"
	conf := testConfig()
	model := inference.NewRandomModel(conf.BoardSize*conf.BoardSize+1, 1)

	engine, err := NewEngine(model, conf)
	require.NoError(t, err)
	defer engine.Close()

	modelMeta := inference.ModelMetadata{
		Engine:        "random",
		InputFeatures: "planes-17",
		InputLayout:   inference.NHWC,
		BoardSize:     conf.BoardSize,
	}
	require.NoError(t, engine.Save(dir, modelMeta))

	loaded, err := LoadMetaData(dir)
	require.NoError(t, err)
	assert.Equal(t, conf.BoardSize, loaded.Config.BoardSize)
	assert.Equal(t, modelMeta, loaded.ModelMeta)
}
