package engine

import (
	"github.com/becomeliminal/travel-memory/core"
	"github.com/becomeliminal/travel-memory/memory"
)

// Trim stages, in the order they are applied.
const (
	stageRetrieved   = "retrieved"
	stagePreferences = "preferences"
	stageRecent      = "recent"
)

// BudgetReport describes how the character budget was applied.
type BudgetReport struct {
	Limit            int      `json:"limit"`
	Used             int      `json:"used"`
	DroppedRetrieved int      `json:"dropped_retrieved"`
	PrefsLimited     bool     `json:"prefs_limited"`
	DroppedRecent    int      `json:"dropped_recent"`
	Stages           []string `json:"stages,omitempty"`
}

// Trimmed reports whether anything was cut.
func (r BudgetReport) Trimmed() bool {
	return len(r.Stages) > 0
}

// contextSize is the serialized size of the memory part of a context.
func contextSize(recent []core.Exchange, retrieved []memory.ScoredRecord, prefs core.PreferenceSet) int {
	n := prefs.Size()
	for _, ex := range recent {
		n += ex.Size()
	}
	for _, r := range retrieved {
		n += len(r.Record.Text())
	}
	return n
}

// applyBudget trims the context to limit characters. Lowest-similarity
// retrieved turns go first, then preferences are capped at perCategory
// values, then the oldest recent exchanges are dropped. The newest exchange
// is always kept, even if the result still exceeds the limit.
//
// retrieved must be ordered by descending score. The inputs are not
// modified.
func applyBudget(limit, perCategory int, recent []core.Exchange, retrieved []memory.ScoredRecord, prefs core.PreferenceSet) ([]core.Exchange, []memory.ScoredRecord, core.PreferenceSet, BudgetReport) {
	report := BudgetReport{Limit: limit}
	size := contextSize(recent, retrieved, prefs)
	if limit <= 0 || size <= limit {
		report.Used = size
		return recent, retrieved, prefs, report
	}

	for len(retrieved) > 0 && size > limit {
		last := retrieved[len(retrieved)-1]
		retrieved = retrieved[:len(retrieved)-1]
		size -= len(last.Record.Text())
		report.DroppedRetrieved++
	}
	if report.DroppedRetrieved > 0 {
		report.Stages = append(report.Stages, stageRetrieved)
	}

	if size > limit {
		limited := prefs.Limit(perCategory)
		if limited.Len() < prefs.Len() {
			size -= prefs.Size() - limited.Size()
			prefs = limited
			report.PrefsLimited = true
			report.Stages = append(report.Stages, stagePreferences)
		}
	}

	for len(recent) > 1 && size > limit {
		size -= recent[0].Size()
		recent = recent[1:]
		report.DroppedRecent++
	}
	if report.DroppedRecent > 0 {
		report.Stages = append(report.Stages, stageRecent)
	}

	report.Used = size
	return recent, retrieved, prefs, report
}
