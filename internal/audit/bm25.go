package audit

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"
)

// Okapi BM25 parameters.
const (
	bm25K1      = 1.2
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// field is a weighted text field; its tokens repeat Weight times in the
// composite document.
type field struct {
	Text   string
	Weight int
}

type document struct {
	Name   string
	Fields []field
}

// bm25Index is immutable after construction and safe for concurrent reads.
type bm25Index struct {
	names     []string
	termFreqs []map[string]int
	lengths   []int
	avgLength float64
	idf       map[string]float64
}

func newBM25(docs []document) *bm25Index {
	ix := &bm25Index{
		names:     make([]string, len(docs)),
		termFreqs: make([]map[string]int, len(docs)),
		lengths:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}
	docFreq := make(map[string]int)
	var total int
	for i, d := range docs {
		ix.names[i] = d.Name
		tokens := compositeTokens(d)
		ix.lengths[i] = len(tokens)
		total += len(tokens)

		tf := make(map[string]int)
		for _, tok := range tokens {
			if tf[tok] == 0 {
				docFreq[tok]++
			}
			tf[tok]++
		}
		ix.termFreqs[i] = tf
	}
	if len(docs) > 0 {
		ix.avgLength = float64(total) / float64(len(docs))
	}
	n := float64(len(docs))
	for term, f := range docFreq {
		idf := math.Log(1 + (n-float64(f)+0.5)/(float64(f)+0.5))
		if idf < 0 {
			idf = bm25Epsilon
		}
		ix.idf[term] = idf
	}
	return ix
}

type hit struct {
	Name  string
	Score float64
}

// search ranks documents by score, ties broken by name, and returns at most
// limit hits with a positive score.
func (ix *bm25Index) search(query string, limit int) []hit {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	var hits []hit
	for i := range ix.names {
		if s := ix.score(i, terms); s > 0 {
			hits = append(hits, hit{Name: ix.names[i], Score: s})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func (ix *bm25Index) score(doc int, terms []string) float64 {
	tf := ix.termFreqs[doc]
	dl := float64(ix.lengths[doc])
	var s float64
	for _, term := range terms {
		idf, ok := ix.idf[term]
		if !ok {
			continue
		}
		f := float64(tf[term])
		if f == 0 {
			continue
		}
		s += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*dl/ix.avgLength))
	}
	return s
}

func compositeTokens(d document) []string {
	var tokens []string
	for _, f := range d.Fields {
		if f.Weight <= 0 {
			continue
		}
		ft := tokenize(f.Text)
		for range f.Weight {
			tokens = append(tokens, ft...)
		}
	}
	return tokens
}

// tokenize splits text into lowercase alphanumeric runs of two or more
// characters.
func tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := matches[:0]
	for _, m := range matches {
		if len(m) >= 2 {
			out = append(out, m)
		}
	}
	return out
}
