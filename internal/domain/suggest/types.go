package suggest

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the coarse bucket a candidate's score falls into.
type Tier string

const (
	TierPerfect Tier = "perfect"
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
)

// TierForScore maps a score in [0,1] to its tier.
func TierForScore(score float64) Tier {
	switch {
	case score >= 0.95:
		return TierPerfect
	case score >= 0.75:
		return TierHigh
	case score >= 0.5:
		return TierMedium
	default:
		return TierLow
	}
}

// Candidate is a proposed counterpart for a bank transaction. Candidates
// are ephemeral: computed on demand, never persisted.
type Candidate struct {
	Type        string          `json:"type"` // invoice, payment, recurring
	ID          string          `json:"id"`
	Reference   string          `json:"reference"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	OpenBalance decimal.Decimal `json:"open_balance"`
	Date        time.Time       `json:"date"`
	Score       float64         `json:"score"`
	Tier        Tier            `json:"tier"`

	// Version is the counterpart's version at suggestion time, carried
	// into the reconciliation commit for the optimistic claim check.
	Version int64 `json:"version"`
}

// Config holds scoring tuning knobs.
type Config struct {
	// AmountTolerance is the relative band around the transaction amount
	// inside which candidates are considered (0.05 = 5%).
	AmountTolerance float64

	// DateWindowDays is how far a candidate date may drift before its
	// date component bottoms out.
	DateWindowDays int

	// MinScore drops candidates scoring below it.
	MinScore float64
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		AmountTolerance: 0.05,
		DateWindowDays:  60,
		MinScore:        0.2,
	}
}

// Combined-score weights. Amount dominates.
const (
	amountWeight = 0.55
	dateWeight   = 0.25
	nameWeight   = 0.20
)

// dateFloor is the date component at the edge of the window.
const dateFloor = 0.1
