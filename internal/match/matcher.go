// Package match links extracted records to roster records.
//
// Rules are applied in order and the first that produces a candidate wins:
// exact student id, exact normalized name, then fuzzy name similarity above
// a threshold. Student ids repeated in the roster never match exactly. Only unclaimed references are eligible, ties go to the
// lexicographically smaller reference id, and a chosen reference is claimed
// for the rest of the pass. Callers must match records serially in input
// document order for the outcome to be reproducible.
package match

import (
	"fmt"

	"github.com/jackzampolin/rollcall/internal/types"
)

const (
	// DefaultThreshold is the minimum similarity for a fuzzy name match.
	DefaultThreshold = 0.75

	scoreExactID   = 1.0
	scoreNameExact = 0.9
)

// Matcher matches extracted records against a fixed roster.
type Matcher struct {
	references []types.ReferenceRecord
	threshold  float64

	byStudentID map[string][]int
	byName      map[string][]int
}

// NewMatcher indexes references for matching. threshold must be in [0,1].
func NewMatcher(references []types.ReferenceRecord, threshold float64) (*Matcher, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("fuzzy threshold %v outside [0,1]", threshold)
	}

	m := &Matcher{
		references:  references,
		threshold:   threshold,
		byStudentID: make(map[string][]int),
		byName:      make(map[string][]int),
	}
	for i, ref := range references {
		if id, ok := ref.Fields.StudentID.Get(); ok {
			m.byStudentID[id] = append(m.byStudentID[id], i)
		}
		if name, ok := ref.Fields.FullName.Get(); ok {
			m.byName[name] = append(m.byName[name], i)
		}
	}
	// A student id shared by several roster rows identifies nobody.
	for id, idx := range m.byStudentID {
		if len(idx) > 1 {
			delete(m.byStudentID, id)
		}
	}
	return m, nil
}

// Threshold returns the fuzzy acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// References returns the roster being matched against.
func (m *Matcher) References() []types.ReferenceRecord {
	return m.references
}

// Reference returns the roster record with the given id.
func (m *Matcher) Reference(id string) (types.ReferenceRecord, bool) {
	for _, ref := range m.references {
		if ref.ID == id {
			return ref, true
		}
	}
	return types.ReferenceRecord{}, false
}

// Match selects at most one unclaimed reference for rec and claims it.
func (m *Matcher) Match(rec *types.ExtractedRecord, claims *ClaimSet) types.MatchResult {
	result := types.MatchResult{
		ExtractedRecordID: rec.SourceDocumentID,
		Basis:             types.BasisUnmatched,
	}

	if id, ok := rec.Fields.StudentID.Get(); ok {
		if idx, found := m.smallestUnclaimed(m.byStudentID[id], claims); found {
			return m.claim(result, idx, scoreExactID, types.BasisExactID, claims)
		}
		if len(m.byStudentID[id]) > 0 {
			holder, _ := claims.ClaimedBy(m.references[m.byStudentID[id][0]].ID)
			result.Note = fmt.Sprintf("student id %s already claimed by %s", id, holder)
		}
	}

	name, ok := rec.Fields.FullName.Get()
	if !ok {
		return result
	}

	if idx, found := m.smallestUnclaimed(m.byName[name], claims); found {
		return m.claim(result, idx, scoreNameExact, types.BasisNameExact, claims)
	}

	best, bestScore := -1, 0.0
	for i, ref := range m.references {
		if claims.IsClaimed(ref.ID) {
			continue
		}
		refName, ok := ref.Fields.FullName.Get()
		if !ok {
			continue
		}
		score := Similarity(name, refName)
		if score < m.threshold {
			continue
		}
		if best < 0 || score > bestScore || (score == bestScore && ref.ID < m.references[best].ID) {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return m.claim(result, best, bestScore, types.BasisNameFuzzy, claims)
	}

	return result
}

// MatchAll matches records serially in slice order with a fresh ClaimSet.
func (m *Matcher) MatchAll(records []*types.ExtractedRecord) ([]types.MatchResult, *ClaimSet) {
	claims := NewClaimSet()
	results := make([]types.MatchResult, len(records))
	for i, rec := range records {
		results[i] = m.Match(rec, claims)
	}
	return results, claims
}

// smallestUnclaimed returns the candidate with the smallest reference id
// that is still unclaimed.
func (m *Matcher) smallestUnclaimed(candidates []int, claims *ClaimSet) (int, bool) {
	best := -1
	for _, idx := range candidates {
		if claims.IsClaimed(m.references[idx].ID) {
			continue
		}
		if best < 0 || m.references[idx].ID < m.references[best].ID {
			best = idx
		}
	}
	return best, best >= 0
}

func (m *Matcher) claim(result types.MatchResult, idx int, score float64, basis types.MatchBasis, claims *ClaimSet) types.MatchResult {
	ref := m.references[idx]
	claims.Claim(ref.ID, result.ExtractedRecordID)
	result.ReferenceID = ref.ID
	result.Score = score
	result.Basis = basis
	return result
}
