package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterSessions(t *testing.T) {
	mar1 := mustDay(t, "2024-03-01")
	mar2 := mustDay(t, "2024-03-02")

	morning := Session{Key: "a", Date: mar2, BranchID: "b1", BranchName: "Central", GroupID: "g1", GroupName: "Juniors", TrainerID: "t1", TrainerName: "Amani Kito"}
	evening := Session{Key: "b", Date: mar2, BranchID: "b2", BranchName: "Lakeside", GroupID: "g2", GroupName: "Seniors", TrainerID: "t2", TrainerName: "Baraka Juma"}
	older := Session{Key: "c", Date: mar1, BranchID: "b1", BranchName: "Central", GroupID: "g2", GroupName: "Seniors", TrainerID: "t1", TrainerName: "Amani Kito"}
	all := []Session{morning, evening, older}

	keys := func(sessions []Session) []string {
		ks := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ks = append(ks, s.Key)
		}
		return ks
	}

	tests := []struct {
		name   string
		filter SessionFilter
		want   []string
	}{
		{name: "no filter", want: []string{"a", "b", "c"}},
		{name: "search trainer name", filter: SessionFilter{Search: "amani"}, want: []string{"a", "c"}},
		{name: "search is case-insensitive", filter: SessionFilter{Search: "  LAKE "}, want: []string{"b"}},
		{name: "search group name", filter: SessionFilter{Search: "senior"}, want: []string{"b", "c"}},
		{name: "search (unknown)", filter: SessionFilter{Search: "lol"}, want: []string{}},
		{name: "branch", filter: SessionFilter{BranchID: "b1"}, want: []string{"a", "c"}},
		{name: "group", filter: SessionFilter{GroupID: "g2"}, want: []string{"b", "c"}},
		{name: "trainer", filter: SessionFilter{TrainerID: "t2"}, want: []string{"b"}},
		{name: "date", filter: SessionFilter{Date: mar2.Add(15 * time.Hour)}, want: []string{"a", "b"}},
		{name: "branch & group", filter: SessionFilter{BranchID: "b1", GroupID: "g2"}, want: []string{"c"}},
		{name: "date & search", filter: SessionFilter{Date: mar1, Search: "kito"}, want: []string{"c"}},
		{name: "all combo (empty)", filter: SessionFilter{Search: "amani", BranchID: "b1", GroupID: "g1", TrainerID: "t1", Date: mar1}, want: []string{}},
		{name: "all combo (found)", filter: SessionFilter{Search: "amani", BranchID: "b1", GroupID: "g1", TrainerID: "t1", Date: mar2}, want: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterSessions(all, tt.filter, time.UTC)
			assert.Equal(t, tt.want, keys(got))
		})
	}

	assert.Equal(t, []string{"a", "b", "c"}, keys(all), "input left untouched")
}

func TestFilterSessions_composes(t *testing.T) {
	mar1 := mustDay(t, "2024-03-01")
	mar2 := mustDay(t, "2024-03-02")
	all := []Session{
		{Key: "a", Date: mar2, BranchID: "b1", BranchName: "Central", GroupID: "g1", GroupName: "Juniors", TrainerID: "t1", TrainerName: "Amani Kito"},
		{Key: "b", Date: mar2, BranchID: "b2", BranchName: "Lakeside", GroupID: "g1", GroupName: "Juniors", TrainerID: "t2", TrainerName: "Baraka Juma"},
		{Key: "c", Date: mar1, BranchID: "b1", BranchName: "Central", GroupID: "g2", GroupName: "Seniors", TrainerID: "t1", TrainerName: "Amani Kito"},
		{Key: "d", Date: mar1, BranchID: "b1", BranchName: "Central", GroupID: "g1", GroupName: "Juniors", TrainerID: "t2", TrainerName: "Baraka Juma"},
	}

	tests := []struct {
		name          string
		first, second SessionFilter
		combined      SessionFilter
	}{
		{
			name:     "branch then group",
			first:    SessionFilter{BranchID: "b1"},
			second:   SessionFilter{GroupID: "g1"},
			combined: SessionFilter{BranchID: "b1", GroupID: "g1"},
		},
		{
			name:     "group then trainer",
			first:    SessionFilter{GroupID: "g1"},
			second:   SessionFilter{TrainerID: "t2"},
			combined: SessionFilter{GroupID: "g1", TrainerID: "t2"},
		},
		{
			name:     "search then date",
			first:    SessionFilter{Search: "baraka"},
			second:   SessionFilter{Date: mar1},
			combined: SessionFilter{Search: "baraka", Date: mar1},
		},
		{
			name:     "date then branch (empty)",
			first:    SessionFilter{Date: mar2},
			second:   SessionFilter{BranchID: "b3"},
			combined: SessionFilter{Date: mar2, BranchID: "b3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chained := FilterSessions(FilterSessions(all, tt.first, time.UTC), tt.second, time.UTC)
			assert.Equal(t, FilterSessions(all, tt.combined, time.UTC), chained)

			swapped := FilterSessions(FilterSessions(all, tt.second, time.UTC), tt.first, time.UTC)
			assert.Equal(t, chained, swapped)
		})
	}
}

func TestSessionFilter_Apply(t *testing.T) {
	mar1 := mustDay(t, "2024-03-01")
	mar2 := mustDay(t, "2024-03-02")
	all := []Session{
		{Key: "a", Date: mar2, GroupID: "g1"},
		{Key: "b", Date: mar2, GroupID: "g2"},
		{Key: "c", Date: mar1, GroupID: "g1"},
	}

	tests := []struct {
		name   string
		filter SessionFilter
		want   []string
	}{
		{name: "empty", want: []string{"a", "b", "c"}},
		{name: "limit", filter: SessionFilter{Limit: 2}, want: []string{"a", "b"}},
		{name: "limit above count", filter: SessionFilter{Limit: 5}, want: []string{"a", "b", "c"}},
		{name: "limit after group", filter: SessionFilter{GroupID: "g1", Limit: 1}, want: []string{"a"}},
		{name: "no limit", filter: SessionFilter{GroupID: "g1"}, want: []string{"a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(all, time.UTC)
			keys := make([]string, 0, len(got))
			for _, s := range got {
				keys = append(keys, s.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
	assert.Len(t, all, 3, "input left untouched")
}

func TestSessionFilter_IsEmpty(t *testing.T) {
	assert.True(t, (&SessionFilter{}).IsEmpty())
	assert.False(t, (&SessionFilter{Search: "x"}).IsEmpty())
	assert.False(t, (&SessionFilter{Date: time.Now()}).IsEmpty())
	assert.False(t, (&SessionFilter{Limit: 1}).IsEmpty())

	sf := SessionFilter{Search: "  ", GroupID: " g1 "}
	sf.Clean()
	assert.Equal(t, SessionFilter{GroupID: "g1"}, sf)
}
