package index

import "math"

const (
	k1 = 1.2
	b  = 0.75
)

const (
	weightExact  = 1.0
	weightPrefix = 0.8
	weightFuzzy  = 0.5
)

// ScoredDoc is one ranked query hit.
type ScoredDoc struct {
	Ref   string  `json:"ref"`
	Score float64 `json:"score"`
	doc   int
}

// computeIDF stays positive when a term occurs in every document.
func computeIDF(totalDocs int, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// scorePosting sums the boosted per-field BM25 contributions of one term
// in one document.
func (s *state) scorePosting(p *Posting, idf float64) float64 {
	var score float64
	for f := Field(0); f < numFields; f++ {
		tf := p.Frequency[f]
		if tf == 0 {
			continue
		}
		norm := computeTFNorm(float64(tf), float64(s.fieldLens[p.Doc][f]), s.avgFieldLen[f])
		score += fieldBoosts[f] * idf * norm
	}
	return score
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
