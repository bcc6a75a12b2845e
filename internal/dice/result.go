package dice

// Result is an immutable recognized round outcome.
type Result struct {
	Left       int
	Right      int
	Winner     Side // NoSide on a draw
	Draw       bool
	Confidence float64
	Valid      bool
}

// NewResult builds a result from counts, deriving the winner from layout.
// minConfidence is the validity floor.
func NewResult(p Pair, confidence, minConfidence float64, layout Layout) Result {
	return NewResultWithWinner(p, layout.Winner(p), confidence, minConfidence)
}

// NewResultWithWinner builds a result for a recognizer that reports the winning
// side itself. winner is ignored when the faces are equal.
func NewResultWithWinner(p Pair, winner Side, confidence, minConfidence float64) Result {
	draw := p.Left == p.Right
	if draw {
		winner = NoSide
	}
	return Result{
		Left:       p.Left,
		Right:      p.Right,
		Winner:     winner,
		Draw:       draw,
		Confidence: confidence,
		Valid:      p.InRange() && confidence >= minConfidence && (draw || winner != NoSide),
	}
}

// Pair returns the face counts.
func (r Result) Pair() Pair { return Pair{Left: r.Left, Right: r.Right} }
