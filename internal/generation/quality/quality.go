// Package quality scores and filters uploaded resources before they are used
// as generation input. Resources arrive already scored by the ingestion
// subsystem; everything here is pure arithmetic over those scores.
package quality

import (
	"errors"
	"fmt"

	"github.com/courseforge/courseforge-backend/internal/types"
)

// ErrInsufficientContent means no resource cleared the caller's minimum
// score. It is a caller-visible failure and is never retried.
var ErrInsufficientContent = errors.New("insufficient eligible content")

// Score bands for the distribution summary.
const (
	PremiumThreshold     = 85
	RecommendedThreshold = 70
	AcceptableThreshold  = 50
)

type Distribution struct {
	Premium      int     `json:"premium"`
	Recommended  int     `json:"recommended"`
	Acceptable   int     `json:"acceptable"`
	Total        int     `json:"total"`
	AverageScore float64 `json:"average_score"`
}

// FilterEligible returns exactly the processed resources whose quality score
// clears minScore, preserving input order.
func FilterEligible(resources []*types.SourceResource, minScore int) ([]*types.SourceResource, error) {
	eligible := make([]*types.SourceResource, 0, len(resources))
	for _, r := range resources {
		if r == nil {
			continue
		}
		if r.Status != types.ResourceStatusProcessed {
			continue
		}
		if r.QualityScore >= minScore {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: 0 of %d resources scored at least %d", ErrInsufficientContent, len(resources), minScore)
	}
	return eligible, nil
}

// Distribution summarizes score bands across resources. Bands are
// cumulative-exclusive: a score of 90 counts as premium only.
func Distribute(resources []*types.SourceResource) Distribution {
	var d Distribution
	var sum int
	for _, r := range resources {
		if r == nil {
			continue
		}
		d.Total++
		sum += r.QualityScore
		switch {
		case r.QualityScore >= PremiumThreshold:
			d.Premium++
		case r.QualityScore >= RecommendedThreshold:
			d.Recommended++
		case r.QualityScore >= AcceptableThreshold:
			d.Acceptable++
		}
	}
	if d.Total > 0 {
		d.AverageScore = float64(sum) / float64(d.Total)
	}
	return d
}
