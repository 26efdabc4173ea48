package lint

import "polyglot/internal/settings"

// Query selects reports. Empty fields match everything.
type Query struct {
	RuleID      string
	MessageID   string
	LanguageTag string
	MinLevel    settings.Level
}

// Filter returns the reports matching q, in their original order.
func Filter(reports []Report, q Query) []Report {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if q.RuleID != "" && r.RuleID != q.RuleID {
			continue
		}
		if q.MessageID != "" && r.MessageID != q.MessageID {
			continue
		}
		if q.LanguageTag != "" && r.LanguageTag != q.LanguageTag {
			continue
		}
		if q.MinLevel != "" && r.Level.Rank() < q.MinLevel.Rank() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CountByLevel tallies reports per level.
func CountByLevel(reports []Report) map[settings.Level]int {
	counts := map[settings.Level]int{}
	for _, r := range reports {
		counts[r.Level]++
	}
	return counts
}
