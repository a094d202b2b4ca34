package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/kilabu/core"
	"github.com/trezcool/kilabu/core/attendance"
)

var (
	orderingParam = "ordering"
	limitParam    = "limit"
	dateParam     = "date"
)

// Ordering binds `?ordering=field,-other` (a leading "-" sorts descending).
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// bindRecordQuery builds the store query and the session filter of a sessions listing.
// ID filters are pushed down to the store; search, date and limit are applied on the sessions.
func bindRecordQuery(ctx echo.Context, loc *time.Location) (attendance.Query, attendance.SessionFilter, error) {
	var sf attendance.SessionFilter
	if err := ctx.Bind(&sf); err != nil {
		return attendance.Query{}, sf, core.NewValidationError(err)
	}
	sf.Clean()

	if day := ctx.QueryParam(dateParam); day != "" {
		date, err := attendance.ParseDay(day, loc)
		if err != nil {
			return attendance.Query{}, sf, core.NewValidationError(nil, core.FieldError{Field: dateParam, Error: "expected format YYYY-MM-DD"})
		}
		sf.Date = date
	}

	q := attendance.NewQuery().
		Where(attendance.FieldBranchID, sf.BranchID).
		Where(attendance.FieldGroupID, sf.GroupID).
		Where(attendance.FieldTrainerID, sf.TrainerID)

	if val := ctx.QueryParam(limitParam); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return attendance.Query{}, sf, core.NewValidationError(nil, core.FieldError{Field: limitParam, Error: "must be a positive integer"})
		}
		sf.Limit = limit // counts sessions, not records
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)
	if len(ordering.Orderings) > 0 {
		q = q.OrderBy(ordering.Orderings[0])
	}
	return q, sf, nil
}
