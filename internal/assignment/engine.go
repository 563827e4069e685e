// Package assignment ranks restaurant tables against reservation requests.
//
// All functions are pure and deterministic: no I/O, no shared state, no
// errors. A request that cannot be satisfied yields nil (single result) or
// an empty slice (batch/options), never an error — "fully booked" is a
// normal outcome for callers, not a fault.
package assignment

import (
	"fmt"
	"sort"
	"strings"

	"wheres-my-table/internal/domain"
)

// maintenancePenalty dominates every additive bonus, so a maintenance table
// can never beat a viable alternative without being hard-rejected.
const maintenancePenalty = -1000

const (
	// DefaultMaxOptions bounds FindTableOptions when the caller passes 0.
	DefaultMaxOptions = 5
	maxAlternatives   = 3
)

// Result is a scored table for one request. Alternatives never contain the
// primary table and hold at most three entries.
type Result struct {
	Table        domain.Table
	Score        int
	Reasons      []string
	Alternatives []domain.Table
}

// BatchAssignment pairs one request of a batch with its outcome. Result is
// nil when no table was left for the request.
type BatchAssignment struct {
	Request domain.ReservationRequest
	Result  *Result
}

// SlotSuggestion reports the best achievable score for one candidate slot.
type SlotSuggestion struct {
	TimeSlot        string
	AvailableTables int
	BestScore       int
}

// Occasion vocabularies. Matching is case-insensitive substring search, so
// "dîner d'anniversaire de mariage" lands in the romantic bucket. Romantic
// terms are checked first: "anniversaire de mariage" must not fall through
// to the family bucket via its "anniversaire" substring.
var (
	romanticTerms = []string{"romantique", "rendez-vous", "anniversaire de mariage", "saint-valentin", "demande en mariage", "date"}
	businessTerms = []string{"affaires", "réunion", "business", "entretien", "professionnel"}
	familyTerms   = []string{"famille", "anniversaire", "groupe", "célébration", "retrouvailles"}
)

func matchesAny(occasion string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(occasion, t) {
			return true
		}
	}
	return false
}

// ScoreTable computes the desirability of a table for a request.
//
// Rules are additive and independent; reasons are appended in rule order so
// the UI can explain the score. A too-small table is penalised, not
// rejected: callers must treat a negative score as a soft warning.
func ScoreTable(table domain.Table, req domain.ReservationRequest) (int, []string) {
	score := 0
	var reasons []string

	// Capacity fit.
	ratio := float64(req.GuestCount) / float64(table.Capacity)
	switch {
	case ratio <= 0.75:
		score += 100
		reasons = append(reasons, fmt.Sprintf("Capacité optimale (%d/%d)", req.GuestCount, table.Capacity))
	case ratio <= 1.0:
		score += 80
		reasons = append(reasons, fmt.Sprintf("Capacité exacte (%d/%d)", req.GuestCount, table.Capacity))
	default:
		score -= 50
		reasons = append(reasons, fmt.Sprintf("Table trop petite (%d/%d)", req.GuestCount, table.Capacity))
	}

	// Seating preference.
	pref := strings.TrimSpace(req.SeatingPreference)
	if pref != "" && pref != domain.NoPreference {
		if string(table.Location) == pref {
			score += 30
			reasons = append(reasons, "Emplacement préféré")
		} else {
			score -= 10
			reasons = append(reasons, "Emplacement différent de la préférence")
		}
	}

	// Occasion bonuses.
	occasion := strings.ToLower(strings.TrimSpace(req.Occasion))
	switch {
	case occasion == "":
		// no occasion, no bonus
	case matchesAny(occasion, romanticTerms):
		if table.Location == domain.LocationPrivate || table.HasFeature("intimate") {
			score += 25
			reasons = append(reasons, "Cadre intime pour l'occasion")
		}
		if table.Shape == domain.ShapeRound && table.Capacity <= 4 {
			score += 15
			reasons = append(reasons, "Table ronde idéale en tête-à-tête")
		}
	case matchesAny(occasion, businessTerms):
		if table.HasFeature("quiet") || table.Location == domain.LocationPrivate {
			score += 20
			reasons = append(reasons, "Environnement calme pour un repas d'affaires")
		}
		if table.Shape == domain.ShapeRectangular {
			score += 10
			reasons = append(reasons, "Table rectangulaire adaptée aux réunions")
		}
	case matchesAny(occasion, familyTerms):
		if table.Capacity >= 6 {
			score += 15
			reasons = append(reasons, "Grande table pour un groupe")
		}
		if table.Location == domain.LocationIndoor {
			score += 10
			reasons = append(reasons, "Salle intérieure adaptée aux familles")
		}
	}

	// Feature bonuses, independent of the occasion.
	if table.HasFeature("window-view") {
		score += 10
		reasons = append(reasons, "Vue sur l'extérieur")
	}
	if table.HasFeature("accessible") {
		score += 5
		reasons = append(reasons, "Table accessible")
	}
	if table.HasFeature("quiet") {
		score += 8
		reasons = append(reasons, "Coin calme")
	}

	if table.Status == domain.TableMaintenance {
		score += maintenancePenalty
		reasons = append(reasons, "Table en maintenance")
	}

	return score, reasons
}

type scored struct {
	table   domain.Table
	score   int
	reasons []string
}

// rank filters to available tables, scores them and sorts descending.
// The sort is stable: ties keep input order.
func rank(tables []domain.Table, req domain.ReservationRequest) []scored {
	ranked := make([]scored, 0, len(tables))
	for _, t := range tables {
		if t.Status != domain.TableAvailable {
			continue
		}
		s, reasons := ScoreTable(t, req)
		ranked = append(ranked, scored{table: t, score: s, reasons: reasons})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked
}

// FindBestTable returns the highest-scoring available table with up to
// three runner-ups, or nil when no table is available at all.
func FindBestTable(tables []domain.Table, req domain.ReservationRequest) *Result {
	ranked := rank(tables, req)
	if len(ranked) == 0 {
		return nil
	}
	best := ranked[0]
	alternatives := make([]domain.Table, 0, maxAlternatives)
	for _, s := range ranked[1:] {
		if len(alternatives) == maxAlternatives {
			break
		}
		alternatives = append(alternatives, s.table)
	}
	return &Result{Table: best.table, Score: best.score, Reasons: best.reasons, Alternatives: alternatives}
}

// FindTableOptions returns up to maxOptions ranked results so the caller
// can present several choices directly. Each result carries no
// alternatives of its own. maxOptions <= 0 means DefaultMaxOptions.
func FindTableOptions(tables []domain.Table, req domain.ReservationRequest, maxOptions int) []Result {
	if maxOptions <= 0 {
		maxOptions = DefaultMaxOptions
	}
	ranked := rank(tables, req)
	if len(ranked) > maxOptions {
		ranked = ranked[:maxOptions]
	}
	results := make([]Result, 0, len(ranked))
	for _, s := range ranked {
		results = append(results, Result{Table: s.table, Score: s.score, Reasons: s.reasons})
	}
	return results
}

// OptimizeMultipleAssignments allocates tables to a batch of simultaneous
// requests without using any table twice. Greedy single pass: larger
// parties pick first, no backtracking. Not globally optimal, which is fine
// at restaurant scale.
func OptimizeMultipleAssignments(tables []domain.Table, requests []domain.ReservationRequest) []BatchAssignment {
	ordered := make([]domain.ReservationRequest, len(requests))
	copy(ordered, requests)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].GuestCount > ordered[j].GuestCount })

	used := make(map[string]bool, len(tables))
	assignments := make([]BatchAssignment, 0, len(ordered))
	for _, req := range ordered {
		remaining := make([]domain.Table, 0, len(tables))
		for _, t := range tables {
			if !used[t.ID] {
				remaining = append(remaining, t)
			}
		}
		result := FindBestTable(remaining, req)
		if result != nil {
			used[result.Table.ID] = true
		}
		assignments = append(assignments, BatchAssignment{Request: req, Result: result})
	}
	return assignments
}

// SuggestAlternativeTimeSlots scores each candidate slot against the same
// availability snapshot and sorts by best achievable score. It does not
// model per-slot availability; the snapshot is assumed valid for every
// slot offered.
func SuggestAlternativeTimeSlots(tables []domain.Table, req domain.ReservationRequest, timeSlots []string) []SlotSuggestion {
	available := 0
	for _, t := range tables {
		if t.Status == domain.TableAvailable {
			available++
		}
	}
	suggestions := make([]SlotSuggestion, 0, len(timeSlots))
	for _, slot := range timeSlots {
		slotReq := req
		slotReq.TimeSlot = slot
		s := SlotSuggestion{TimeSlot: slot, AvailableTables: available}
		if best := FindBestTable(tables, slotReq); best != nil {
			s.BestScore = best.Score
		}
		suggestions = append(suggestions, s)
	}
	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].BestScore > suggestions[j].BestScore })
	return suggestions
}
