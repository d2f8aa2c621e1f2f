package main

import (
	"math"
	"time"
)

const (
	basePoints    = 500
	bonusPoints   = 500
	partialPoints = 300
)

// scoreAnswer computes correctness and points for a submitted selection.
// Pure function: the elapsed time since the question started is passed in
// rather than read from a clock.
//
// Correct answers earn 500 points plus a speed bonus of up to 500 more,
// scaling linearly down to zero at the question's time limit. Multi-choice
// submissions that select only correct choices, but not all of them, earn
// partial credit of up to 300 points with no speed bonus. Any wrong
// selection scores zero.
func scoreAnswer(q *Question, selected []int, elapsed time.Duration) (correct bool, points int) {
	if len(selected) == 0 {
		return false, 0
	}

	limit := time.Duration(q.Time) * time.Second
	ratio := (limit - elapsed).Seconds() / limit.Seconds()
	if ratio < 0 {
		ratio = 0
	}

	full := int(math.Round(basePoints + bonusPoints*ratio))

	if q.Kind != kindMultiple {
		if len(selected) == 1 && selected[0] == q.Correct {
			return true, full
		}
		return false, 0
	}

	want := make(map[int]bool, len(q.CorrectSet))
	for _, idx := range q.CorrectSet {
		want[idx] = true
	}

	seen := make(map[int]bool, len(selected))
	hits := 0
	for _, idx := range selected {
		if !want[idx] {
			return false, 0
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		hits++
	}

	if hits == len(want) {
		return true, full
	}

	return false, int(math.Round(float64(hits) / float64(len(want)) * partialPoints))
}
