package board

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyBoardBlackToPlay(t *testing.T) {
	p := NewPosition(9)
	assert.Equal(t, Black, p.ToPlay())
	assert.Equal(t, 0, p.MoveNumber())
	assert.Equal(t, InvalidMove, p.KoPoint())
	for i := 0; i < p.N2(); i++ {
		assert.Equal(t, Empty, p.At(Coord(i)))
	}
}

func TestSuicideIsIllegal(t *testing.T) {
	// Surround a single empty point at the corner with white stones,
	// black playing into the eye is suicide.
	p := NewPosition(9)
	var err error
	// White stones at the neighbors of point (0,0)=coord 0: (1,0)=1 and (0,1)=9.
	p, err = p.PlayMove(Black, 40) // filler move elsewhere
	require.NoError(t, err)
	p, err = p.PlayMove(White, 1)
	require.NoError(t, err)
	p, err = p.PlayMove(Black, 41)
	require.NoError(t, err)
	p, err = p.PlayMove(White, 9)
	require.NoError(t, err)

	assert.False(t, p.IsMoveLegal(Black, 0))
	_, err = p.PlayMove(Black, 0)
	assert.Error(t, err)

	assert.True(t, p.IsMoveLegal(White, 0))
}

func TestCaptureRemovesStoneAndOpensLiberty(t *testing.T) {
	p := NewPosition(9)
	var err error
	// Black surrounds a single white stone at point 10 (x=1,y=1) on a 9x9 board.
	p, err = p.PlayMove(White, 10)
	require.NoError(t, err)
	p, err = p.PlayMove(Black, 1) // north of 10 (y=0,x=1)
	require.NoError(t, err)
	p, err = p.PlayMove(White, 70) // filler
	require.NoError(t, err)
	p, err = p.PlayMove(Black, 19) // south of 10 (y=2,x=1)
	require.NoError(t, err)
	p, err = p.PlayMove(White, 71) // filler
	require.NoError(t, err)
	p, err = p.PlayMove(Black, 9) // west of 10 (x=0,y=1)
	require.NoError(t, err)
	p, err = p.PlayMove(White, 72) // filler
	require.NoError(t, err)

	require.Equal(t, White, p.At(10))
	p, err = p.PlayMove(Black, 11) // east of 10 (x=2,y=1) - captures
	require.NoError(t, err)
	assert.Equal(t, Empty, p.At(10))
	assert.Equal(t, 1, p.Captures(Black))
}

func TestKoPointBlocksImmediateRecapture(t *testing.T) {
	// Classic ko diamond on a 9x9 board (coord = y*9+x):
	//   White lone stone at 10, surrounded on 3 sides by Black (9, 11, 1),
	//   with White stones at 18, 20, 28 boxing in the capturing point, 19.
	p := NewPosition(9)
	var err error
	for _, mv := range []struct {
		c Color
		m Coord
	}{
		{White, 10}, {Black, 9},
		{White, 18}, {Black, 11},
		{White, 20}, {Black, 1},
		{White, 28},
	} {
		p, err = p.PlayMove(mv.c, mv.m)
		require.NoError(t, err)
	}

	require.Equal(t, White, p.At(10))
	p, err = p.PlayMove(Black, 19)
	require.NoError(t, err)

	assert.Equal(t, Empty, p.At(10))
	assert.Equal(t, 1, p.Captures(Black))
	assert.Equal(t, Coord(10), p.KoPoint())

	// White may not immediately recapture at the ko point.
	assert.False(t, p.IsMoveLegal(White, 10))
	_, err = p.PlayMove(White, 10)
	assert.Error(t, err)
}

func TestPositionalSuperkoRejectsRepetition(t *testing.T) {
	// Reuse the ko diamond from TestKoPointBlocksImmediateRecapture, but
	// drive it around a full two-step cycle: Black captures White's lone
	// stone at 10, both sides pass to clear the simple ko restriction,
	// White recaptures back at 10 (forming the mirrored ko at 19), both
	// sides pass again, and Black tries to recapture at 19 a second time.
	// That last move is not blocked by the simple immediate-ko rule (the
	// ko point was cleared by the passes in between) but reconstructs the
	// exact board, side-to-play, and ko point seen right after Black's
	// first capture, so positional superko must reject it.
	p := NewPosition(9)
	var err error
	for _, mv := range []struct {
		c Color
		m Coord
	}{
		{White, 10}, {Black, 9},
		{White, 18}, {Black, 11},
		{White, 20}, {Black, 1},
		{White, 28},
	} {
		p, err = p.PlayMove(mv.c, mv.m)
		require.NoError(t, err)
	}

	p, err = p.PlayMove(Black, 19) // captures White's stone at 10
	require.NoError(t, err)
	require.Equal(t, Coord(10), p.KoPoint())

	p, err = p.PlayMove(White, PassMove)
	require.NoError(t, err)
	p, err = p.PlayMove(Black, PassMove)
	require.NoError(t, err)
	require.Equal(t, InvalidMove, p.KoPoint(), "passing clears the simple ko restriction")

	p, err = p.PlayMove(White, 10) // recaptures Black's stone at 19, mirrored ko at 19
	require.NoError(t, err)
	require.Equal(t, Coord(19), p.KoPoint())

	p, err = p.PlayMove(Black, PassMove)
	require.NoError(t, err)
	p, err = p.PlayMove(White, PassMove)
	require.NoError(t, err)
	require.Equal(t, InvalidMove, p.KoPoint())

	_, err = p.PlayMove(Black, 19) // would recreate the board right after the first capture
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalMove))
}

func TestTwoPassesEndGame(t *testing.T) {
	p := NewPosition(9)
	p1, err := p.PlayMove(Black, PassMove)
	require.NoError(t, err)
	assert.False(t, p1.Ended())
	p2, err := p1.PlayMove(White, PassMove)
	require.NoError(t, err)
	assert.True(t, p2.Ended())
	assert.Equal(t, -DefaultKomi, p2.CalculateScore(DefaultKomi))
	assert.Equal(t, "W+7.5", ResultString(p2.CalculateScore(DefaultKomi)))
}

func TestCloneIsIndependent(t *testing.T) {
	p := NewPosition(9)
	p, err := p.PlayMove(Black, 5)
	require.NoError(t, err)
	clone := p.Clone()
	p2, err := p.PlayMove(White, 6)
	require.NoError(t, err)
	assert.NotEqual(t, p2.Hash(), clone.Hash())
	assert.Equal(t, Empty, clone.At(6))
}
