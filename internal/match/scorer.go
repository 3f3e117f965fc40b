// Package match holds the session matching engine: scoring one exit
// observation against open sessions and choosing at most one pairing.
// Everything here is a pure computation over its inputs so the real-time
// ingestion path and the reconciliation loop decide identically.
package match

import (
	"time"

	"parking-service/internal/domain/parking"
	"parking-service/internal/plate"
)

// Config carries the empirically tuned matching thresholds. They are
// configuration defaults, not fixed constants.
type Config struct {
	// AcceptFloor is the minimum confidence any returned match must have.
	AcceptFloor float64
	// FuzzyFloor is the minimum combined plate/province similarity for the
	// fuzzy strategy. This is the recall/precision knob.
	FuzzyFloor float64
	// NumericProvinceFloor is the minimum province similarity required by
	// the numeric-priority strategy.
	NumericProvinceFloor float64
	// CorroborationBoost is added when a recent entry observation
	// independently resembles the exit. Capped so confidence stays in [0,1].
	CorroborationBoost float64
}

func DefaultConfig() Config {
	return Config{
		AcceptFloor:          0.70,
		FuzzyFloor:           0.75,
		NumericProvinceFloor: 0.85,
		CorroborationBoost:   0.05,
	}
}

const numericPriorityConfidence = 0.90

// Exit is an exit observation normalized once before scanning candidates.
type Exit struct {
	Plate    string
	Digits   string
	Province string
	Time     time.Time
}

func NormalizeExit(obs parking.Observation) Exit {
	return Exit{
		Plate:    plate.NormalizePlate(obs.PlateRaw),
		Digits:   plate.TrailingDigits(obs.PlateRaw),
		Province: plate.NormalizeProvince(obs.ProvinceRaw),
		Time:     obs.Timestamp,
	}
}

// score evaluates one exit against one candidate session under the three
// strategies in strict priority order. The first strategy that fires wins
// for this pair.
func score(exit Exit, session parking.ParkingSession, cfg Config) (parking.MatchType, float64, bool) {
	candPlate := plate.NormalizePlate(session.EntryPlate)
	candProvince := plate.NormalizeProvince(session.EntryProvince)

	if exit.Plate != "" && exit.Plate == candPlate && exit.Province == candProvince {
		return parking.MatchExact, 1.0, true
	}

	if exit.Digits != "" && exit.Digits == plate.TrailingDigits(session.EntryPlate) {
		if plate.Ratio(exit.Province, candProvince) >= cfg.NumericProvinceFloor {
			return parking.MatchNumericPriority, numericPriorityConfidence, true
		}
	}

	combined := 0.7*plate.Ratio(exit.Plate, candPlate) + 0.3*plate.Ratio(exit.Province, candProvince)
	if combined >= cfg.FuzzyFloor {
		return parking.MatchFuzzy, combined, true
	}

	return parking.MatchNone, 0, false
}

// corroborated reports whether the entry observation that opened the
// candidate session is present in the recent-entries window and itself
// resembles the exit: same trailing digit run, province essentially right.
// Extra evidence that OCR made the same mistake on both ends of the trip.
func corroborated(exit Exit, session parking.ParkingSession, recentEntries []parking.Observation, cfg Config) bool {
	if session.EntryEventID == nil {
		return false
	}
	for _, obs := range recentEntries {
		if obs.ID != *session.EntryEventID || obs.Direction != parking.DirectionEntry {
			continue
		}
		if exit.Digits == "" || plate.TrailingDigits(obs.PlateRaw) != exit.Digits {
			return false
		}
		return plate.Ratio(plate.NormalizeProvince(obs.ProvinceRaw), exit.Province) >= cfg.NumericProvinceFloor
	}
	return false
}

func boosted(confidence float64, exit Exit, session parking.ParkingSession, recentEntries []parking.Observation, cfg Config) float64 {
	if !corroborated(exit, session, recentEntries, cfg) {
		return confidence
	}
	confidence += cfg.CorroborationBoost
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
