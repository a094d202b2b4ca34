package attendance

import (
	"strings"
	"time"

	"github.com/trezcool/kilabu/core"
)

// SessionFilter narrows down sessions; zero fields add no constraint and all set fields are ANDed.
type SessionFilter struct {
	// Search does a case-insensitive match on one of the trainer, branch or group name.
	Search    string    `query:"search" json:"search"`
	BranchID  string    `query:"branch_id" json:"branch_id"`
	GroupID   string    `query:"group_id" json:"group_id"`
	TrainerID string    `query:"trainer_id" json:"trainer_id"`
	Date      time.Time `query:"-" json:"date"`
	// Limit caps the number of sessions kept after the other constraints; 0 keeps them all.
	// Records are never cut, so a listed session always carries all of its records.
	Limit int `query:"-" json:"limit"`
}

func (sf *SessionFilter) IsEmpty() bool {
	return sf.Search == "" && sf.BranchID == "" && sf.GroupID == "" && sf.TrainerID == "" && sf.Date.IsZero() && sf.Limit == 0
}

// Apply filters sessions with sf and then keeps at most sf.Limit of them.
func (sf SessionFilter) Apply(sessions []Session, loc *time.Location) []Session {
	if sf.IsEmpty() {
		return sessions
	}
	sessions = FilterSessions(sessions, sf, loc)
	if sf.Limit > 0 && len(sessions) > sf.Limit {
		sessions = sessions[:sf.Limit]
	}
	return sessions
}

func (sf *SessionFilter) Clean() {
	sf.Search = core.CleanString(sf.Search)
	sf.BranchID = core.CleanString(sf.BranchID)
	sf.GroupID = core.CleanString(sf.GroupID)
	sf.TrainerID = core.CleanString(sf.TrainerID)
}

// FilterSessions returns the sessions matching sf, in their original order. sessions is left untouched.
// sf.Limit is ignored: see Apply.
// Dates are compared by calendar day in loc.
func FilterSessions(sessions []Session, sf SessionFilter, loc *time.Location) []Session {
	search := strings.ToLower(core.CleanString(sf.Search))
	var day string
	if !sf.Date.IsZero() {
		day = DayKey(sf.Date, loc)
	}

	filtered := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		if sf.BranchID != "" && sess.BranchID != sf.BranchID {
			continue
		}
		if sf.GroupID != "" && sess.GroupID != sf.GroupID {
			continue
		}
		if sf.TrainerID != "" && sess.TrainerID != sf.TrainerID {
			continue
		}
		if day != "" && DayKey(sess.Date, loc) != day {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(sess.TrainerName), search) &&
			!strings.Contains(strings.ToLower(sess.BranchName), search) &&
			!strings.Contains(strings.ToLower(sess.GroupName), search) {
			continue
		}
		filtered = append(filtered, sess)
	}
	return filtered
}
