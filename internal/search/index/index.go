// Package index is the in-memory full-text index over job documents. It
// supports exact, prefix and typo-tolerant term matching and ranks hits
// with per-field BM25 scaled by field boosts.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/search/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
)

const DefaultBatchSize = 500

// ErrIndexNotReady is returned by Query and Rebuild before the first
// successful Build.
var ErrIndexNotReady = fmt.Errorf("search index: %w", apperrors.ErrIndexNotReady)

// Options tune a single Query.
type Options struct {
	// MatchAny relaxes the default AND semantics: a document matches when
	// any query token matches.
	MatchAny bool
	// Limit caps the number of hits. Zero means no cap.
	Limit int
}

type state struct {
	docs        []Document
	postings    map[string]PostingList
	terms       []string
	termRunes   []int
	fieldLens   [][numFields]int
	avgFieldLen [numFields]float64
}

// Index is safe for concurrent use. Queries run against an immutable
// state which Build replaces atomically.
type Index struct {
	mu        sync.RWMutex
	current   *state
	batchSize int
	logger    *slog.Logger
}

func New(batchSize int) *Index {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Index{
		batchSize: batchSize,
		logger:    slog.Default().With("component", "search-index"),
	}
}

// Build indexes docs in chunks, checking ctx between chunks. On error the
// previous state, if any, stays in place.
func (ix *Index) Build(ctx context.Context, docs []Document) error {
	start := time.Now()
	owned := make([]Document, len(docs))
	copy(owned, docs)

	next := &state{
		docs:      owned,
		postings:  make(map[string]PostingList),
		fieldLens: make([][numFields]int, len(owned)),
	}
	for lo := 0; lo < len(owned); lo += ix.batchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("building index: %w", err)
		}
		hi := min(lo+ix.batchSize, len(owned))
		for ord := lo; ord < hi; ord++ {
			next.add(ord, owned[ord])
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	next.finish()

	ix.mu.Lock()
	ix.current = next
	ix.mu.Unlock()

	ix.logger.Info("index built",
		"documents", len(owned),
		"terms", len(next.terms),
		"duration", time.Since(start),
	)
	return nil
}

// Rebuild reconstructs all state from the documents of the last Build.
func (ix *Index) Rebuild(ctx context.Context) error {
	ix.mu.RLock()
	cur := ix.current
	ix.mu.RUnlock()
	if cur == nil {
		return ErrIndexNotReady
	}
	return ix.Build(ctx, cur.docs)
}

func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.current != nil
}

func (ix *Index) DocCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.current == nil {
		return 0
	}
	return len(ix.current.docs)
}

func (ix *Index) TermCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.current == nil {
		return 0
	}
	return len(ix.current.terms)
}

// Query tokenizes text and returns matching documents ordered by
// descending score, ties broken by build order. An empty token list
// yields no hits.
func (ix *Index) Query(text string, opts Options) ([]ScoredDoc, error) {
	ix.mu.RLock()
	s := ix.current
	ix.mu.RUnlock()
	if s == nil {
		return nil, ErrIndexNotReady
	}

	tokens := dedupe(tokenizer.QueryTerms(text))
	if len(tokens) == 0 {
		return []ScoredDoc{}, nil
	}

	perToken := make([]map[int]float64, 0, len(tokens))
	for _, tok := range tokens {
		scores := s.scoreToken(tok)
		if len(scores) == 0 && !opts.MatchAny {
			return []ScoredDoc{}, nil
		}
		perToken = append(perToken, scores)
	}

	var candidates map[int]float64
	if opts.MatchAny {
		candidates = unionScores(perToken)
	} else {
		candidates = intersectScores(perToken)
	}

	result := make([]ScoredDoc, 0, len(candidates))
	for doc, score := range candidates {
		result = append(result, ScoredDoc{
			Ref:   s.docs[doc].Ref,
			Score: round4(score),
			doc:   doc,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].doc < result[j].doc
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *state) add(ord int, doc Document) {
	termData := make(map[string]*Posting)
	for f := Field(0); f < numFields; f++ {
		tokens := tokenizer.Tokenize(doc.field(f))
		s.fieldLens[ord][f] = len(tokens)
		for _, tok := range tokens {
			p, exists := termData[tok.Term]
			if !exists {
				p = &Posting{Doc: ord}
				termData[tok.Term] = p
			}
			p.Frequency[f]++
		}
	}
	// Documents are added in ascending ordinal order, so appending keeps
	// every PostingList sorted.
	for term, posting := range termData {
		s.postings[term] = append(s.postings[term], posting)
	}
}

func (s *state) finish() {
	s.terms = make([]string, 0, len(s.postings))
	for term := range s.postings {
		s.terms = append(s.terms, term)
	}
	sort.Strings(s.terms)
	s.termRunes = make([]int, len(s.terms))
	for i, term := range s.terms {
		s.termRunes[i] = runeLen(term)
	}

	if len(s.docs) == 0 {
		return
	}
	var totals [numFields]int
	for _, lens := range s.fieldLens {
		for f := range lens {
			totals[f] += lens[f]
		}
	}
	for f := range totals {
		s.avgFieldLen[f] = float64(totals[f]) / float64(len(s.docs))
	}
}

// scoreToken returns, per matching document, the best weighted score any
// expansion of tok achieves in it.
func (s *state) scoreToken(tok string) map[int]float64 {
	scores := make(map[int]float64)
	apply := func(term string, weight float64) {
		postings := s.postings[term]
		idf := computeIDF(len(s.docs), len(postings))
		for _, p := range postings {
			v := weight * s.scorePosting(p, idf)
			if cur, seen := scores[p.Doc]; !seen || v > cur {
				scores[p.Doc] = v
			}
		}
	}

	if _, ok := s.postings[tok]; ok {
		apply(tok, weightExact)
	}

	lo := sort.SearchStrings(s.terms, tok)
	for i := lo; i < len(s.terms) && strings.HasPrefix(s.terms[i], tok); i++ {
		if s.terms[i] != tok {
			apply(s.terms[i], weightPrefix)
		}
	}

	n := runeLen(tok)
	if edits := maxEdits(n); edits > 0 {
		tokRunes := []rune(tok)
		for i, term := range s.terms {
			if abs(s.termRunes[i]-n) > edits || term == tok || strings.HasPrefix(term, tok) {
				continue
			}
			if withinDistance(tokRunes, []rune(term), edits) {
				apply(term, weightFuzzy)
			}
		}
	}
	return scores
}

func intersectScores(perToken []map[int]float64) map[int]float64 {
	shortest := 0
	for i, scores := range perToken {
		if len(scores) < len(perToken[shortest]) {
			shortest = i
		}
	}
	candidates := make(map[int]float64, len(perToken[shortest]))
	for doc := range perToken[shortest] {
		var total float64
		matched := true
		for _, scores := range perToken {
			v, ok := scores[doc]
			if !ok {
				matched = false
				break
			}
			total += v
		}
		if matched {
			candidates[doc] = total
		}
	}
	return candidates
}

func unionScores(perToken []map[int]float64) map[int]float64 {
	result := make(map[int]float64)
	for _, scores := range perToken {
		for doc, v := range scores {
			result[doc] += v
		}
	}
	return result
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
