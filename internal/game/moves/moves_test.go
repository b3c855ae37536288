package moves_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rpssl/gameserver/internal/game/moves"
)

var allMoves = []moves.Move{moves.Rock, moves.Paper, moves.Scissors, moves.Lizard, moves.Spock}

func TestResolve_KnownPairs(t *testing.T) {
	assert.Equal(t, moves.Win, moves.Resolve(moves.Rock, moves.Scissors))
	assert.Equal(t, moves.Lose, moves.Resolve(moves.Rock, moves.Paper))
	assert.Equal(t, moves.Win, moves.Resolve(moves.Spock, moves.Rock))
	assert.Equal(t, moves.Win, moves.Resolve(moves.Lizard, moves.Spock))
	assert.Equal(t, moves.Tie, moves.Resolve(moves.Paper, moves.Paper))
}

func TestResolve_TotalAndMirrored(t *testing.T) {
	for _, a := range allMoves {
		for _, b := range allMoves {
			got := moves.Resolve(a, b)
			mirror := moves.Resolve(b, a)
			if a == b {
				assert.Equal(t, moves.Tie, got, "%s vs %s", a, b)
				continue
			}
			switch got {
			case moves.Win:
				assert.Equal(t, moves.Lose, mirror, "%s beats %s, so %s must lose to %s", a, b, b, a)
			case moves.Lose:
				assert.Equal(t, moves.Win, mirror, "%s loses to %s, so %s must beat %s", a, b, b, a)
			default:
				t.Fatalf("distinct pair %s vs %s resolved to tie", a, b)
			}
		}
	}
}

func TestResolve_EachMoveBeatsExactlyTwo(t *testing.T) {
	for _, a := range allMoves {
		wins := 0
		for _, b := range allMoves {
			if moves.Resolve(a, b) == moves.Win {
				wins++
			}
		}
		assert.Equal(t, 2, wins, "%s must beat exactly two moves", a)
	}
}

func TestFromID(t *testing.T) {
	m, err := moves.FromID(1)
	require.NoError(t, err)
	assert.Equal(t, moves.Rock, m)

	m, err = moves.FromID(5)
	require.NoError(t, err)
	assert.Equal(t, moves.Spock, m)

	_, err = moves.FromID(0)
	assert.Error(t, err)
	_, err = moves.FromID(6)
	assert.Error(t, err)
}

func TestChoices(t *testing.T) {
	choices := moves.Choices()
	require.Len(t, choices, 5)
	assert.Equal(t, moves.Choice{ID: 1, Name: "Rock"}, choices[0])
	assert.Equal(t, moves.Choice{ID: 5, Name: "Spock"}, choices[4])
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "win", moves.Win.String())
	assert.Equal(t, "lose", moves.Lose.String())
	assert.Equal(t, "tie", moves.Tie.String())
}

func TestPropertyResolveConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := moves.Move(rapid.IntRange(moves.MinMove, moves.MaxMove).Draw(t, "a"))
		b := moves.Move(rapid.IntRange(moves.MinMove, moves.MaxMove).Draw(t, "b"))

		got := moves.Resolve(a, b)
		mirror := moves.Resolve(b, a)

		// Exactly one of Win/Lose/Tie holds, and the relation is antisymmetric.
		if a == b {
			if got != moves.Tie || mirror != moves.Tie {
				t.Fatalf("equal moves must tie: got %v / %v", got, mirror)
			}
			return
		}
		if got == moves.Tie {
			t.Fatalf("distinct moves %v vs %v must not tie", a, b)
		}
		if (got == moves.Win) == (mirror == moves.Win) {
			t.Fatalf("relation not antisymmetric for %v vs %v: %v / %v", a, b, got, mirror)
		}
	})
}
