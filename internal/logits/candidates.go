package logits

import (
	"cmp"
	"math"
	"slices"

	"github.com/samcharles93/llamabridge/internal/llm"
)

type candidate struct {
	id    llm.Token
	logit float32
	p     float64
}

// candidates is the working set a chain narrows. Until the first stage that
// sorts it, data[i].id == i.
type candidates struct {
	data   []candidate
	sorted bool
}

func (cs *candidates) reset(logits []float32) {
	if cap(cs.data) < len(logits) {
		cs.data = make([]candidate, len(logits))
	}
	cs.data = cs.data[:len(logits)]
	for i, l := range logits {
		cs.data[i] = candidate{id: llm.Token(i), logit: l}
	}
	cs.sorted = false
}

func (cs *candidates) byID(id llm.Token) *candidate {
	if !cs.sorted {
		if id < 0 || int(id) >= len(cs.data) {
			return nil
		}
		return &cs.data[id]
	}
	for i := range cs.data {
		if cs.data[i].id == id {
			return &cs.data[i]
		}
	}
	return nil
}

func (cs *candidates) sort() {
	if cs.sorted {
		return
	}
	slices.SortStableFunc(cs.data, func(a, b candidate) int {
		return cmp.Compare(b.logit, a.logit)
	})
	cs.sorted = true
}

// softmax sorts the candidates and fills p.
func (cs *candidates) softmax() {
	cs.sort()
	maxl := float64(cs.data[0].logit)
	var sum float64
	for i := range cs.data {
		e := math.Exp(float64(cs.data[i].logit) - maxl)
		cs.data[i].p = e
		sum += e
	}
	for i := range cs.data {
		cs.data[i].p /= sum
	}
}

func (cs *candidates) topK(k int) {
	if k <= 0 {
		return
	}
	cs.sort()
	if k < len(cs.data) {
		cs.data = cs.data[:k]
	}
}

// minP keeps candidates whose probability is at least p times the most
// likely one. Compared in logit space: l >= lmax + ln(p).
func (cs *candidates) minP(p float32) {
	if p <= 0 || len(cs.data) <= 1 {
		return
	}
	cs.sort()
	threshold := float64(cs.data[0].logit) + math.Log(float64(p))
	keep := 1
	for keep < len(cs.data) && float64(cs.data[keep].logit) >= threshold {
		keep++
	}
	cs.data = cs.data[:keep]
}

// topP keeps the smallest prefix whose cumulative probability reaches p.
func (cs *candidates) topP(p float32) {
	if p >= 1 || len(cs.data) <= 1 {
		return
	}
	cs.softmax()
	var cum float64
	for i := range cs.data {
		cum += cs.data[i].p
		if cum >= float64(p) {
			cs.data = cs.data[:i+1]
			return
		}
	}
}

func (cs *candidates) scale(inv float32) {
	for i := range cs.data {
		cs.data[i].logit *= inv
	}
}

// draw picks a candidate by inverse CDF using r in [0,1).
func (cs *candidates) draw(r float64) llm.Token {
	cs.softmax()
	var cum float64
	for i := range cs.data {
		cum += cs.data[i].p
		if r < cum {
			return cs.data[i].id
		}
	}
	return cs.data[len(cs.data)-1].id
}

func (cs *candidates) argmax() llm.Token {
	best := 0
	for i := 1; i < len(cs.data); i++ {
		if cs.data[i].logit > cs.data[best].logit {
			best = i
		}
	}
	return cs.data[best].id
}
