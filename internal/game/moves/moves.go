// Package moves defines the five-move extended rock-paper-scissors relation
// and resolves move pairs into outcomes.
package moves

import "fmt"

// Move is one of the five playable moves. The zero value is invalid so that
// an unset move slot is distinguishable from Rock.
type Move int

const (
	Rock Move = iota + 1
	Paper
	Scissors
	Lizard
	Spock
)

// MinMove and MaxMove bound the valid wire encoding of a move.
const (
	MinMove = int(Rock)
	MaxMove = int(Spock)
)

// Outcome is the result of resolving an ordered move pair.
type Outcome int

const (
	Tie Outcome = iota
	Win
	Lose
)

var moveNames = map[Move]string{
	Rock:     "Rock",
	Paper:    "Paper",
	Scissors: "Scissors",
	Lizard:   "Lizard",
	Spock:    "Spock",
}

// beats maps each move to the exactly two moves it defeats.
//
// Invariant: for every ordered pair (a, b) with a != b, exactly one of
// beats[a][b] and beats[b][a] holds.
var beats = map[Move]map[Move]bool{
	Rock:     {Scissors: true, Lizard: true},
	Paper:    {Rock: true, Spock: true},
	Scissors: {Paper: true, Lizard: true},
	Lizard:   {Spock: true, Paper: true},
	Spock:    {Scissors: true, Rock: true},
}

// Valid reports whether m is one of the five defined moves.
func (m Move) Valid() bool {
	_, ok := moveNames[m]
	return ok
}

// String returns the move's display name, or "Unknown" for invalid values.
func (m Move) String() string {
	if name, ok := moveNames[m]; ok {
		return name
	}
	return "Unknown"
}

// FromID converts a wire-encoded move id (1..5) into a Move.
//
// Postcondition: Returns a valid Move, or an error if id is out of range.
func FromID(id int) (Move, error) {
	m := Move(id)
	if !m.Valid() {
		return 0, fmt.Errorf("move id %d out of range [%d, %d]", id, MinMove, MaxMove)
	}
	return m, nil
}

// Resolve returns the outcome of move a against move b from a's perspective.
//
// Postcondition: Returns Tie iff a == b; Win iff a beats b; Lose otherwise.
func Resolve(a, b Move) Outcome {
	if a == b {
		return Tie
	}
	if beats[a][b] {
		return Win
	}
	return Lose
}

// Choice is a move presented to clients as an id/name pair.
type Choice struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Choices returns all five moves in id order.
func Choices() []Choice {
	out := make([]Choice, 0, MaxMove)
	for id := MinMove; id <= MaxMove; id++ {
		out = append(out, Choice{ID: id, Name: Move(id).String()})
	}
	return out
}

// String returns the outcome as "tie", "win", or "lose".
func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Lose:
		return "lose"
	default:
		return "tie"
	}
}
