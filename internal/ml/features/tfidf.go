package features

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]{2,}`)

// terms returns the unigrams and adjacent bigrams of text after stop-word
// removal.
func terms(text string) []string {
	var words []string
	for _, w := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopWords[w]; !stop {
			words = append(words, w)
		}
	}
	out := append([]string(nil), words...)
	for i := 0; i+1 < len(words); i++ {
		out = append(out, words[i]+" "+words[i+1])
	}
	return out
}

// tfidf is a vocabulary fitted on one corpus.
type tfidf struct {
	vocab []string // sorted
	index map[string]int
	idf   []float64
}

// fitTFIDF builds the vocabulary: terms present in at least minDF documents
// and at most maxDF×n documents, keeping the maxFeatures most frequent.
func fitTFIDF(docs [][]string, maxFeatures, minDF int, maxDF float64) *tfidf {
	n := len(docs)
	df := make(map[string]int)
	tf := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, t := range doc {
			tf[t]++
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	maxCount := maxDF * float64(n)
	var kept []string
	for t, d := range df {
		if d < minDF || float64(d) > maxCount {
			continue
		}
		kept = append(kept, t)
	}
	sort.Slice(kept, func(i, j int) bool {
		if tf[kept[i]] != tf[kept[j]] {
			return tf[kept[i]] > tf[kept[j]]
		}
		return kept[i] < kept[j]
	})
	if maxFeatures > 0 && len(kept) > maxFeatures {
		kept = kept[:maxFeatures]
	}
	sort.Strings(kept)

	m := &tfidf{vocab: kept, index: make(map[string]int, len(kept)), idf: make([]float64, len(kept))}
	for i, t := range kept {
		m.index[t] = i
		m.idf[i] = math.Log(float64(1+n)/float64(1+df[t])) + 1
	}
	return m
}

// transform returns the L2-normalized tf-idf row for one document.
func (m *tfidf) transform(doc []string) []float64 {
	row := make([]float64, len(m.vocab))
	for _, t := range doc {
		if i, ok := m.index[t]; ok {
			row[i]++
		}
	}
	var norm float64
	for i := range row {
		row[i] *= m.idf[i]
		norm += row[i] * row[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range row {
			row[i] /= norm
		}
	}
	return row
}
