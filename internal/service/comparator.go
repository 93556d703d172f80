package service

import (
	"fmt"
	"math"
	"time"

	"github.com/moats-ai/moats-backend/internal/model"
)

// ComparisonResult is the outcome of structural comparison.
type ComparisonResult string

const (
	ComparisonMatch         ComparisonResult = "match"
	ComparisonContradiction ComparisonResult = "contradiction"
	ComparisonPartial       ComparisonResult = "partial"
	ComparisonNone          ComparisonResult = "no_comparison"
)

// Comparison is the result of structurally comparing a claim against a piece
// of evidence.
type Comparison struct {
	Result            ComparisonResult
	ContradictionType model.ContradictionType
	Confidence        float64
	Explanation       string
}

const (
	defaultNumericTolerance = 0.05
	defaultTemporalWindow   = 7 // days
	zeroEpsilon             = 1e-10
)

// Comparator compares two claim structures symbolically. Dispatch runs
// numeric → temporal → polarity and stops at the first rule that produces a
// definite result. Only the first numeric and first temporal value on each
// side take part.
type Comparator struct {
	numericTolerance float64
	temporalWindow   int // days
}

// NewComparator creates a Comparator. Non-positive parameters fall back to
// the defaults (5% tolerance, 7-day window).
func NewComparator(numericTolerance float64, temporalWindowDays int) *Comparator {
	if numericTolerance <= 0 {
		numericTolerance = defaultNumericTolerance
	}
	if temporalWindowDays <= 0 {
		temporalWindowDays = defaultTemporalWindow
	}
	return &Comparator{
		numericTolerance: numericTolerance,
		temporalWindow:   temporalWindowDays,
	}
}

// Compare compares a claim structure against an evidence structure.
func (c *Comparator) Compare(claim, evidence ClaimStructure) Comparison {
	if len(claim.Numerics) > 0 && len(evidence.Numerics) > 0 {
		if cmp := c.compareNumeric(claim.Numerics[0], evidence.Numerics[0]); cmp.Result != ComparisonNone {
			return cmp
		}
	}

	if len(claim.Temporals) > 0 && len(evidence.Temporals) > 0 {
		if cmp := c.compareTemporal(claim.Temporals[0], evidence.Temporals[0]); cmp.Result != ComparisonNone {
			return cmp
		}
	}

	if claim.Polarity != PolarityUncertain && evidence.Polarity != PolarityUncertain {
		if cmp := comparePolarity(claim.Polarity, evidence.Polarity); cmp.Result != ComparisonNone {
			return cmp
		}
	}

	return Comparison{
		Result:      ComparisonNone,
		Confidence:  0.0,
		Explanation: "Cannot compare structurally, requires reasoning",
	}
}

func (c *Comparator) compareNumeric(claim, evidence NumericValue) Comparison {
	if claim.Unit != evidence.Unit {
		return Comparison{
			Result:      ComparisonNone,
			Confidence:  0.0,
			Explanation: fmt.Sprintf("Different units: %s vs %s", claim.Unit, evidence.Unit),
		}
	}

	if math.Abs(evidence.Value) < zeroEpsilon {
		if math.Abs(claim.Value) < zeroEpsilon {
			return Comparison{
				Result:      ComparisonMatch,
				Confidence:  0.95,
				Explanation: "Both values are zero",
			}
		}
		return Comparison{
			Result:            ComparisonContradiction,
			ContradictionType: model.ContradictionMagnitude,
			Confidence:        0.95,
			Explanation:       fmt.Sprintf("Claim: %s, Evidence: ~0", claim.Raw),
		}
	}

	diff := math.Abs(claim.Value-evidence.Value) / math.Abs(evidence.Value)

	if diff <= c.numericTolerance {
		return Comparison{
			Result:     ComparisonMatch,
			Confidence: math.Min(claim.Confidence, evidence.Confidence),
			Explanation: fmt.Sprintf("Values match: %s approx %s (within %.0f%% tolerance)",
				claim.Raw, evidence.Raw, c.numericTolerance*100),
		}
	}

	return Comparison{
		Result:            ComparisonContradiction,
		ContradictionType: model.ContradictionMagnitude,
		Confidence:        math.Min(claim.Confidence, evidence.Confidence) * 0.95,
		Explanation: fmt.Sprintf("Values differ: claim says %s, evidence says %s (%.1f%% difference)",
			claim.Raw, evidence.Raw, diff*100),
	}
}

func (c *Comparator) compareTemporal(claim, evidence TemporalValue) Comparison {
	// Intervals are inclusive; overlap means neither ends before the other starts.
	if !claim.Start.After(evidence.End) && !evidence.Start.After(claim.End) {
		startDiff := absDays(claim.Start, evidence.Start)
		endDiff := absDays(claim.End, evidence.End)

		if startDiff <= c.temporalWindow && endDiff <= c.temporalWindow {
			return Comparison{
				Result:     ComparisonMatch,
				Confidence: math.Min(claim.Confidence, evidence.Confidence),
				Explanation: fmt.Sprintf("Time periods match: %s approx %s",
					claim.Raw, evidence.Raw),
			}
		}

		return Comparison{
			Result:            ComparisonPartial,
			ContradictionType: model.ContradictionTemporal,
			Confidence:        0.7,
			Explanation: fmt.Sprintf("Time periods overlap but differ: %s vs %s",
				claim.Raw, evidence.Raw),
		}
	}

	return Comparison{
		Result:            ComparisonContradiction,
		ContradictionType: model.ContradictionTemporal,
		Confidence:        math.Min(claim.Confidence, evidence.Confidence) * 0.9,
		Explanation: fmt.Sprintf("Time periods do not match: claim says %s, evidence says %s",
			claim.Raw, evidence.Raw),
	}
}

func comparePolarity(claim, evidence Polarity) Comparison {
	if claim == evidence {
		return Comparison{
			Result:      ComparisonMatch,
			Confidence:  0.75,
			Explanation: "Statement polarity matches",
		}
	}
	return Comparison{
		Result:            ComparisonContradiction,
		ContradictionType: model.ContradictionNegation,
		Confidence:        0.85,
		Explanation:       fmt.Sprintf("Polarity mismatch: claim is %s, evidence is %s", claim, evidence),
	}
}

// absDays returns the absolute difference between two dates in whole days.
func absDays(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}
