// Package vectorizer builds the term vocabulary and smoothed IDF weights for
// a corpus and turns token sequences into dense TF-IDF vectors.
package vectorizer

// Vocabulary is an ordered set of unique terms. Position i of every Vector
// produced against a Vocabulary corresponds to Term(i).
type Vocabulary struct {
	terms     []string
	positions map[string]int
}

// BuildVocabulary collects every distinct token in docs, in first-seen
// order. An empty corpus yields an empty vocabulary.
func BuildVocabulary(docs [][]string) *Vocabulary {
	v := &Vocabulary{
		terms:     make([]string, 0),
		positions: make(map[string]int),
	}
	for _, doc := range docs {
		for _, token := range doc {
			if _, exists := v.positions[token]; exists {
				continue
			}
			v.positions[token] = len(v.terms)
			v.terms = append(v.terms, token)
		}
	}
	return v
}

func (v *Vocabulary) Len() int {
	return len(v.terms)
}

func (v *Vocabulary) Term(i int) string {
	return v.terms[i]
}

// Position returns the vector index of term.
func (v *Vocabulary) Position(term string) (int, bool) {
	pos, ok := v.positions[term]
	return pos, ok
}

// Terms returns a copy of the terms in vector order.
func (v *Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}
