package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kilabu/core"
)

type countingMetrics struct {
	core.Metrics
	malformed int
}

func (m *countingMetrics) ObserveMalformedRecord() { m.malformed++ }

func rec(id string, date time.Time, groupID, trainerID string, status Status) Record {
	return Record{
		ID:          id,
		StudentID:   "s-" + id,
		StudentName: "Student " + id,
		TrainerID:   trainerID,
		TrainerName: "Trainer " + trainerID,
		BranchID:    "b1",
		BranchName:  "Central",
		GroupID:     groupID,
		GroupName:   "Group " + groupID,
		Date:        date,
		Status:      status,
	}
}

func mustDay(t *testing.T, day string) time.Time {
	d, err := ParseDay(day, time.UTC)
	require.NoError(t, err)
	return d
}

type counts struct{ present, absent, late, excused, total int }

func countsOf(s Session) counts {
	return counts{s.PresentCount, s.AbsentCount, s.LateCount, s.ExcusedCount, s.TotalCount}
}

func TestGroup(t *testing.T) {
	mar1 := mustDay(t, "2024-03-01").Add(18 * time.Hour)
	mar2 := mustDay(t, "2024-03-02").Add(9 * time.Hour)

	tests := []struct {
		name       string
		records    []Record
		wantKeys   []string
		wantCounts []counts
	}{
		{
			name:       "no records",
			wantKeys:   []string{},
			wantCounts: []counts{},
		},
		{
			name: "mixed statuses in one session",
			records: []Record{
				rec("1", mar1, "g1", "t1", StatusPresent),
				rec("2", mar1.Add(time.Minute), "g1", "t1", StatusPresent),
				rec("3", mar1, "g1", "t1", StatusAbsent),
				rec("4", mar1, "g1", "t1", StatusLate),
				rec("5", mar1, "g1", "t1", StatusExcused),
			},
			wantKeys:   []string{"2024-03-01|g1|t1"},
			wantCounts: []counts{{2, 1, 1, 1, 5}},
		},
		{
			name: "most recent day first",
			records: []Record{
				rec("1", mar1, "g1", "t1", StatusPresent),
				rec("2", mar2, "g1", "t1", StatusAbsent),
			},
			wantKeys:   []string{"2024-03-02|g1|t1", "2024-03-01|g1|t1"},
			wantCounts: []counts{{0, 1, 0, 0, 1}, {1, 0, 0, 0, 1}},
		},
		{
			name: "same day split by group and trainer",
			records: []Record{
				rec("1", mar1, "g2", "t1", StatusPresent),
				rec("2", mar1, "g1", "t2", StatusPresent),
				rec("3", mar1, "g1", "t1", StatusPresent),
			},
			wantKeys:   []string{"2024-03-01|g1|t1", "2024-03-01|g1|t2", "2024-03-01|g2|t1"},
			wantCounts: []counts{{1, 0, 0, 0, 1}, {1, 0, 0, 0, 1}, {1, 0, 0, 0, 1}},
		},
		{
			name: "unknown and empty statuses only count in total",
			records: []Record{
				rec("1", mar1, "g1", "t1", StatusPresent),
				rec("2", mar1, "g1", "t1", Status("sick")),
				rec("3", mar1, "g1", "t1", Status("")),
			},
			wantKeys:   []string{"2024-03-01|g1|t1"},
			wantCounts: []counts{{1, 0, 0, 0, 3}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := Group(tt.records)
			require.NotNil(t, sessions)

			keys := make([]string, 0, len(sessions))
			cnts := make([]counts, 0, len(sessions))
			for _, s := range sessions {
				keys = append(keys, s.Key)
				cnts = append(cnts, countsOf(s))
				assert.Equal(t, s.TotalCount, len(s.Records))
				assert.Equal(t, s.TotalCount, s.BlastRadius())
			}
			assert.Equal(t, tt.wantKeys, keys)
			assert.Equal(t, tt.wantCounts, cnts)
		})
	}
}

func TestGrouper_skipsMalformedRecords(t *testing.T) {
	day := mustDay(t, "2024-03-01")
	records := []Record{
		rec("1", day, "g1", "t1", StatusPresent),
		rec("2", day, "g1", "t1", StatusPresent),
		rec("3", time.Time{}, "g1", "t1", StatusPresent),
		rec("4", day, "g1", "t1", StatusAbsent),
		rec("5", day, "g1", "t1", StatusLate),
		rec("6", day, "g1", "t1", StatusExcused),
	}
	metrics := &countingMetrics{Metrics: core.NopMetrics}
	g := Grouper{Location: time.UTC, Logger: core.NopLogger, Metrics: metrics}

	sessions := g.Group(records)

	require.Len(t, sessions, 1)
	assert.Equal(t, 5, sessions[0].TotalCount)
	assert.Equal(t, counts{2, 1, 1, 1, 5}, countsOf(sessions[0]))
	_, found := sessions[0].Record("3")
	assert.False(t, found)
	assert.Equal(t, 1, metrics.malformed)
}

func TestGrouper_location(t *testing.T) {
	eat := time.FixedZone("EAT", 3*60*60)
	// 22:30 UTC is already the next day in UTC+3
	late := time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC)
	early := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	records := []Record{
		rec("1", late, "g1", "t1", StatusPresent),
		rec("2", early, "g1", "t1", StatusPresent),
	}

	tests := []struct {
		name     string
		loc      *time.Location
		wantKeys []string
	}{
		{name: "UTC", loc: time.UTC, wantKeys: []string{"2024-03-01|g1|t1"}},
		{name: "UTC+3", loc: eat, wantKeys: []string{"2024-03-02|g1|t1", "2024-03-01|g1|t1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := Grouper{Location: tt.loc}.Group(records)
			keys := make([]string, 0, len(sessions))
			for _, s := range sessions {
				keys = append(keys, s.Key)
				assert.Equal(t, s.Date.Location(), tt.loc)
				assert.Equal(t, 0, s.Date.Hour())
			}
			assert.Equal(t, tt.wantKeys, keys)
		})
	}
}

func TestGroup_isOrderIndependent(t *testing.T) {
	mar1 := mustDay(t, "2024-03-01")
	mar2 := mustDay(t, "2024-03-02")
	records := []Record{
		rec("1", mar1, "g1", "t1", StatusPresent),
		rec("2", mar2, "g1", "t1", StatusAbsent),
		rec("3", mar1, "g2", "t1", StatusLate),
		rec("4", mar1, "g1", "t1", StatusExcused),
		rec("5", mar2, "g1", "t2", StatusPresent),
	}
	reversed := make([]Record, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}

	summary := func(sessions []Session) map[string]counts {
		m := make(map[string]counts, len(sessions))
		for _, s := range sessions {
			m[s.Key] = countsOf(s)
		}
		return m
	}
	keys := func(sessions []Session) []string {
		ks := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ks = append(ks, s.Key)
		}
		return ks
	}

	first, second := Group(records), Group(reversed)
	assert.Equal(t, keys(first), keys(second))
	assert.Equal(t, summary(first), summary(second))
	assert.Equal(t, first, Group(records), "grouping the same input twice")
}

func TestGroup_isIdempotent(t *testing.T) {
	mar1 := mustDay(t, "2024-03-01").Add(17 * time.Hour)
	mar2 := mustDay(t, "2024-03-02").Add(9 * time.Hour)

	tests := []struct {
		name    string
		records []Record
	}{
		{name: "no records"},
		{
			name: "one session",
			records: []Record{
				rec("1", mar1, "g1", "t1", StatusPresent),
				rec("2", mar1, "g1", "t1", StatusLate),
			},
		},
		{
			name: "several days, groups and trainers",
			records: []Record{
				rec("1", mar1, "g1", "t1", StatusPresent),
				rec("2", mar2, "g1", "t1", StatusAbsent),
				rec("3", mar1, "g2", "t1", StatusLate),
				rec("4", mar1, "g1", "t2", StatusExcused),
				rec("5", mar2, "g1", "t2", Status("sick")),
			},
		},
		{
			name: "separator in ids",
			records: []Record{
				rec("1", mar1, "a|b", "c", StatusPresent),
				rec("2", mar1, "a", "b|c", StatusAbsent),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := Group(tt.records)

			flattened := make([]Record, 0, len(tt.records))
			for _, s := range first {
				flattened = append(flattened, s.Records...)
			}
			assert.Equal(t, first, Group(flattened))
		})
	}
}

func TestGroup_separatorInIDs(t *testing.T) {
	day := mustDay(t, "2024-03-01")
	records := []Record{
		rec("1", day, "a|b", "c", StatusPresent),
		rec("2", day, "a", "b|c", StatusAbsent),
		rec("3", day, `a\`, "b", StatusLate),
		rec("4", day, "a", `\b`, StatusExcused),
	}

	sessions := Group(records)

	require.Len(t, sessions, 4)
	seen := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		assert.Equal(t, 1, s.TotalCount, "session %s", s.Key)
		assert.False(t, seen[s.Key], "duplicate key %s", s.Key)
		seen[s.Key] = true
	}
}

func TestGroup_sessionSnapshot(t *testing.T) {
	day := mustDay(t, "2024-03-01")
	first := rec("1", day, "g1", "t1", StatusPresent)
	second := rec("2", day, "g1", "t1", StatusPresent)
	second.TrainerName = "Renamed Trainer"

	sessions := Group([]Record{first, second})

	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, "Trainer t1", s.TrainerName)
	assert.Equal(t, "Group g1", s.GroupName)
	assert.Equal(t, "Central", s.BranchName)
	assert.Equal(t, "2024-03-01", s.Day())
	assert.Equal(t, []string{"1", "2"}, s.RecordIDs())
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "2024-03-01|g1|t1", SessionKey("2024-03-01", "g1", "t1"))
	assert.NotEqual(t, SessionKey("2024-03-01", "g1", "t2"), SessionKey("2024-03-01", "g2", "t1"))
	assert.NotEqual(t, SessionKey("2024-03-01", "a|b", "c"), SessionKey("2024-03-01", "a", "b|c"))
	assert.NotEqual(t, SessionKey("2024-03-01", `a\`, "b"), SessionKey("2024-03-01", "a", `\b`))
	assert.Equal(t, `2024-03-01|a\|b|c`, SessionKey("2024-03-01", "a|b", "c"))

	eat := time.FixedZone("EAT", 3*60*60)
	at := time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01", DayKey(at, nil))
	assert.Equal(t, "2024-03-02", DayKey(at, eat))
}
