package match

import (
	"parking-service/internal/domain/parking"
	"parking-service/internal/plate"
)

// Result is the matcher's pairing decision for one exit observation.
type Result struct {
	Session    parking.ParkingSession
	Type       parking.MatchType
	Confidence float64
}

func strategyRank(t parking.MatchType) int {
	switch t {
	case parking.MatchExact:
		return 3
	case parking.MatchNumericPriority:
		return 2
	case parking.MatchFuzzy:
		return 1
	default:
		return 0
	}
}

// FindBestMatch scores every eligible open session against the exit and
// returns the single best candidate, or nil when nothing clears the
// acceptance floor. An exact candidate is authoritative and returned the
// moment it is found, without scanning the rest. At equal confidence the
// higher-priority strategy wins the tie.
func FindBestMatch(exit Exit, openSessions []parking.ParkingSession, recentEntries []parking.Observation, cfg Config) *Result {
	if exit.Plate == "" {
		return nil
	}

	var best *Result
	for _, session := range openSessions {
		if session.Status != parking.StatusParked {
			continue
		}
		if session.EntryTime == nil || !session.EntryTime.Before(exit.Time) {
			continue
		}

		matchType, confidence, ok := score(exit, session, cfg)
		if !ok {
			continue
		}
		confidence = boosted(confidence, exit, session, recentEntries, cfg)

		if matchType == parking.MatchExact {
			return &Result{Session: session, Type: matchType, Confidence: confidence}
		}
		if confidence < cfg.AcceptFloor {
			continue
		}
		if best == nil ||
			confidence > best.Confidence ||
			(confidence == best.Confidence && strategyRank(matchType) > strategyRank(best.Type)) {
			best = &Result{Session: session, Type: matchType, Confidence: confidence}
		}
	}
	return best
}

// DuplicateOpenPlates returns normalized plate+province keys shared by more
// than one open session. More than one exact candidate for a single exit is
// a data-integrity defect, not a runtime error; callers log it loudly.
func DuplicateOpenPlates(openSessions []parking.ParkingSession) []string {
	seen := make(map[string]int)
	for _, session := range openSessions {
		if session.Status != parking.StatusParked {
			continue
		}
		key := plate.NormalizePlate(session.EntryPlate) + "|" + plate.NormalizeProvince(session.EntryProvince)
		seen[key]++
	}
	var dups []string
	for key, count := range seen {
		if count > 1 {
			dups = append(dups, key)
		}
	}
	return dups
}
