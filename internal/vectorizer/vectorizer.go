package vectorizer

// Vector is a dense TF-IDF vector indexed by vocabulary position.
type Vector []float64

// Transform counts raw term frequencies in tokens and emits
// tf(term) * weight(term) for every vocabulary term, in vocabulary order.
// Tokens outside the vocabulary are ignored. The result always has
// vocab.Len() entries and is not length-normalized.
func Transform(tokens []string, vocab *Vocabulary, weights WeightTable) Vector {
	tf := make([]int, vocab.Len())
	for _, token := range tokens {
		if pos, ok := vocab.positions[token]; ok {
			tf[pos]++
		}
	}
	vec := make(Vector, vocab.Len())
	for pos, count := range tf {
		if count == 0 {
			continue
		}
		vec[pos] = float64(count) * weights.Weight(pos)
	}
	return vec
}

// SquaredNorm returns the sum of the squared components of v.
func (v Vector) SquaredNorm() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return sum
}

// IsZero reports whether every component of v is zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
