package attendance

import (
	"sort"
	"time"

	"github.com/trezcool/kilabu/core"
)

// sessionID is the grouping identity of a record: its calendar day, group and trainer.
type sessionID struct {
	day, groupID, trainerID string
}

// Grouper folds flat attendance records into Sessions.
// Calendar days are taken in Location so a late-evening training never splits across two days.
type Grouper struct {
	Location *time.Location
	Logger   core.Logger
	Metrics  core.Metrics
}

// Group aggregates records with UTC day boundaries, discarding malformed records silently.
func Group(records []Record) []Session {
	return Grouper{}.Group(records)
}

// Group is pure: the same records, in any order, give the same sessions and counts.
// Records without a date are skipped and logged. Sessions come out most recent day first,
// ties ordered by key.
func (g Grouper) Group(records []Record) []Session {
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}

	sessions := make(map[sessionID]*Session)
	for _, rec := range records {
		if rec.Date.IsZero() {
			g.malformed(rec, "missing or unparseable date")
			continue
		}

		id := sessionID{day: DayKey(rec.Date, loc), groupID: rec.GroupID, trainerID: rec.TrainerID}
		sess, ok := sessions[id]
		if !ok {
			date, _ := ParseDay(id.day, loc)
			sess = &Session{
				Key:         SessionKey(id.day, id.groupID, id.trainerID),
				Date:        date,
				GroupID:     rec.GroupID,
				GroupName:   rec.GroupName,
				TrainerID:   rec.TrainerID,
				TrainerName: rec.TrainerName,
				BranchID:    rec.BranchID,
				BranchName:  rec.BranchName,
			}
			sessions[id] = sess
		}

		sess.Records = append(sess.Records, rec)
		sess.TotalCount++
		switch rec.Status {
		case StatusPresent:
			sess.PresentCount++
		case StatusAbsent:
			sess.AbsentCount++
		case StatusLate:
			sess.LateCount++
		case StatusExcused:
			sess.ExcusedCount++
		}
	}

	result := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, *sess)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].Key < result[j].Key
	})
	return result
}

func (g Grouper) malformed(rec Record, reason string) {
	err := &MalformedRecordError{RecordID: rec.ID, Reason: reason}
	if g.Logger != nil {
		g.Logger.Warn("skipping attendance record", err)
	}
	if g.Metrics != nil {
		g.Metrics.ObserveMalformedRecord()
	}
}
