package main

import "math/rand"

// player remembers the stimuli of the current game and decides whether to
// press MATCH. With probability accuracy it answers correctly.
type player struct {
	rng      *rand.Rand
	accuracy float64

	nBack  int
	values []int

	presses, correct int
}

func newPlayer(rng *rand.Rand, accuracy float64) *player {
	return &player{rng: rng, accuracy: accuracy}
}

// reset starts tracking a new game at the given lag.
func (p *player) reset(nBack int) {
	p.nBack = nBack
	p.values = p.values[:0]
}

// observe records the stimulus shown at 1-based index and reports whether
// to press.
func (p *player) observe(index, value int) bool {
	for len(p.values) < index {
		p.values = append(p.values, 0)
	}
	p.values[index-1] = value

	back := index - 1 - p.nBack
	if back < 0 {
		return false
	}
	isMatch := p.values[back] == value
	press := isMatch
	if p.rng.Float64() >= p.accuracy {
		press = !press
	}
	if press {
		p.presses++
		if isMatch {
			p.correct++
		}
	}
	return press
}
