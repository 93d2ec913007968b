// Package dedup classifies incoming transactions against the rows already
// recorded for an account.
package dedup

import (
	"math"

	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/normalize"
	"github.com/dvloznov/statement-consolidator/internal/similarity"
)

// DefaultFuzzyThreshold is the minimum description similarity for a fuzzy
// match between records with equal date and amount.
const DefaultFuzzyThreshold = 0.85

// Option configures an Engine.
type Option func(*Engine)

// WithFuzzyThreshold overrides DefaultFuzzyThreshold.
func WithFuzzyThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.threshold = threshold
	}
}

type referenceEntry struct {
	tx  domain.Transaction
	key normalize.Key
}

// Engine holds the reference set of one account. It is not safe for
// concurrent use; callers serialise SetReference and the classification
// calls.
type Engine struct {
	threshold float64
	reference []referenceEntry
}

// New creates an engine with an empty reference set.
func New(opts ...Option) *Engine {
	e := &Engine{threshold: DefaultFuzzyThreshold}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the fuzzy threshold in use.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// SetReference replaces the reference set. The previous set is discarded.
func (e *Engine) SetReference(txs []domain.Transaction) {
	ref := make([]referenceEntry, len(txs))
	for i, tx := range txs {
		ref[i] = referenceEntry{tx: tx, key: normalize.Fingerprint(tx)}
	}
	e.reference = ref
}

// Reference returns a copy of the current reference set.
func (e *Engine) Reference() []domain.Transaction {
	out := make([]domain.Transaction, len(e.reference))
	for i, r := range e.reference {
		out[i] = r.tx
	}
	return out
}

// Match is the classification of a single transaction.
type Match struct {
	IsDuplicate bool
	MatchedWith *domain.Transaction
	Similarity  float64
}

// IsDuplicate compares t with each reference record in order and reports
// the first one that is an exact or fuzzy match.
func (e *Engine) IsDuplicate(t domain.Transaction) Match {
	key := normalize.Fingerprint(t)
	for i := range e.reference {
		ref := e.reference[i]
		if ref.key == key {
			return Match{IsDuplicate: true, MatchedWith: &ref.tx, Similarity: 1.0}
		}
		if ref.key.Date != key.Date || ref.key.Amount != key.Amount {
			continue
		}
		if score := similarity.Score(key.Description, ref.key.Description); score >= e.threshold {
			return Match{IsDuplicate: true, MatchedWith: &ref.tx, Similarity: score}
		}
	}
	return Match{}
}

// Duplicate is an incoming transaction that matched a reference record.
type Duplicate struct {
	Transaction domain.Transaction `json:"transaction"`
	MatchedWith domain.Transaction `json:"matched_with"`
	Similarity  float64            `json:"similarity"`
}

// Result partitions a batch. Both slices keep input order.
type Result struct {
	Unique     []domain.Transaction `json:"unique"`
	Duplicates []Duplicate          `json:"duplicates"`
}

// FilterDuplicates splits txs into unique records and duplicates.
func (e *Engine) FilterDuplicates(txs []domain.Transaction) Result {
	res := Result{
		Unique:     []domain.Transaction{},
		Duplicates: []Duplicate{},
	}
	for _, tx := range txs {
		m := e.IsDuplicate(tx)
		if !m.IsDuplicate {
			res.Unique = append(res.Unique, tx)
			continue
		}
		res.Duplicates = append(res.Duplicates, Duplicate{
			Transaction: tx,
			MatchedWith: *m.MatchedWith,
			Similarity:  m.Similarity,
		})
	}
	return res
}

// Stats summarises a classification run.
type Stats struct {
	Total         int     `json:"total"`
	Unique        int     `json:"unique"`
	Duplicates    int     `json:"duplicates"`
	DuplicateRate float64 `json:"duplicate_rate"`
}

// Stats classifies txs and returns counts. DuplicateRate is a percentage
// rounded to one decimal.
func (e *Engine) Stats(txs []domain.Transaction) Stats {
	return StatsOf(e.FilterDuplicates(txs))
}

// StatsOf computes Stats from an existing Result.
func StatsOf(r Result) Stats {
	s := Stats{
		Unique:     len(r.Unique),
		Duplicates: len(r.Duplicates),
	}
	s.Total = s.Unique + s.Duplicates
	if s.Total > 0 {
		s.DuplicateRate = math.Round(float64(s.Duplicates)/float64(s.Total)*1000) / 10
	}
	return s
}
