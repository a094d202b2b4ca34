package attendance

import (
	"strings"
	"time"

	"github.com/trezcool/kilabu/core"
)

// DayLayout is the canonical calendar-day representation used in session keys and APIs.
const DayLayout = "2006-01-02"

type Status string

// Statuses
const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

func (s Status) IsValid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Record is one student's attendance at one training.
// Names are snapshots taken at creation time: renaming a trainer does not rewrite past records.
// (Date, GroupID, TrainerID) never change after creation; only Status and Notes do.
type Record struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	TrainerID   string    `json:"trainer_id"`
	TrainerName string    `json:"trainer_name"`
	BranchID    string    `json:"branch_id"`
	BranchName  string    `json:"branch_name"`
	GroupID     string    `json:"group_id"`
	GroupName   string    `json:"group_name"`
	Date        time.Time `json:"date"` // zero when missing or unparseable
	Status      Status    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// RecordUpdate holds the mutable fields of a Record. Nil fields are left untouched.
type RecordUpdate struct {
	Status *Status
	Notes  *string
}

// Session is every Record sharing one calendar day, group and trainer.
// It is never persisted: it's rebuilt from the records on every read.
type Session struct {
	Key          string    `json:"key"`
	Date         time.Time `json:"date"`
	GroupID      string    `json:"group_id"`
	GroupName    string    `json:"group_name"`
	TrainerID    string    `json:"trainer_id"`
	TrainerName  string    `json:"trainer_name"`
	BranchID     string    `json:"branch_id"`
	BranchName   string    `json:"branch_name"`
	Records      []Record  `json:"records"`
	PresentCount int       `json:"present_count"`
	AbsentCount  int       `json:"absent_count"`
	LateCount    int       `json:"late_count"`
	ExcusedCount int       `json:"excused_count"`
	TotalCount   int       `json:"total_count"`
}

// Day returns the session's calendar day as YYYY-MM-DD.
func (s Session) Day() string {
	return s.Date.Format(DayLayout)
}

func (s Session) RecordIDs() []string {
	ids := make([]string, 0, len(s.Records))
	for _, rec := range s.Records {
		ids = append(ids, rec.ID)
	}
	return ids
}

func (s Session) Record(id string) (Record, bool) {
	for _, rec := range s.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}

// BlastRadius is the number of records removed by deleting the session.
func (s Session) BlastRadius() int {
	return len(s.Records)
}

// DayKey formats the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD day as midnight in loc.
func ParseDay(day string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DayLayout, core.CleanString(day), loc)
}

// SessionKey builds the composite identity of the session a record belongs to.
// Separators and backslashes inside the parts are escaped, so distinct parts never give the same key.
func SessionKey(day, groupID, trainerID string) string {
	return strings.Join([]string{
		keyEscaper.Replace(day),
		keyEscaper.Replace(groupID),
		keyEscaper.Replace(trainerID),
	}, keySep)
}

const keySep = "|"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySep, `\`+keySep)

// EntityRef is a denormalized reference: an ID plus its display name at submission time.
type EntityRef struct {
	ID   string `json:"id" validate:"required,id_"`
	Name string `json:"name"`
}

// Entry is one student's line when taking attendance.
type Entry struct {
	StudentID   string `json:"student_id" validate:"required,id_"`
	StudentName string `json:"student_name"`
	Status      Status `json:"status" validate:"required,attendance_status"`
	Notes       string `json:"notes"`
}

// NewSession contains information needed to take attendance for one training.
type NewSession struct {
	Branch  EntityRef `json:"branch" validate:"required"`
	Group   EntityRef `json:"group" validate:"required"`
	Trainer EntityRef `json:"trainer" validate:"required"`
	Date    time.Time `json:"date" validate:"required"`
	Entries []Entry   `json:"entries" validate:"min=1,dive"`
}

func (ns *NewSession) Clean() {
	ns.Branch.ID = core.CleanString(ns.Branch.ID)
	ns.Branch.Name = core.CleanString(ns.Branch.Name)
	ns.Group.ID = core.CleanString(ns.Group.ID)
	ns.Group.Name = core.CleanString(ns.Group.Name)
	ns.Trainer.ID = core.CleanString(ns.Trainer.ID)
	ns.Trainer.Name = core.CleanString(ns.Trainer.Name)
	for i := range ns.Entries {
		ns.Entries[i].StudentID = core.CleanString(ns.Entries[i].StudentID)
		ns.Entries[i].StudentName = core.CleanString(ns.Entries[i].StudentName)
		ns.Entries[i].Status = Status(core.CleanString(string(ns.Entries[i].Status), true /* lower */))
		ns.Entries[i].Notes = core.CleanString(ns.Entries[i].Notes)
	}
}
