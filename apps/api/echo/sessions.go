package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kilabu/core/attendance"
)

var ctxSessionKey = "session"

type sessionApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service, validate *validator.Validate) {
	api := sessionApi{
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/sessions", jwt, actorMiddleware)
	sg.GET("", api.query)
	sg.POST("", api.create, manageAttendanceMiddleware)
	sg.GET("/live", api.live)

	// detail endpoints: permissions are checked before the session is loaded
	dg := g.Group("/groups/:groupId/trainers/:trainerId/sessions/:date", jwt, actorMiddleware)
	dg.GET("", api.retrieve, api.sessionMiddleware)
	dg.DELETE("", api.destroy, manageAttendanceMiddleware, api.sessionMiddleware)
	dg.PUT("/statuses", api.updateStatuses, manageAttendanceMiddleware, api.sessionMiddleware)
}

// Handlers

func (api *sessionApi) query(ctx echo.Context) error {
	q, sf, err := bindRecordQuery(ctx, api.svc.Location())
	if err != nil {
		return err
	}

	sessions, err := api.svc.Sessions(ctx.Request().Context(), q, sf)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) create(ctx echo.Context) error {
	var data attendance.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}

	ids, err := api.svc.CreateSession(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, CreatedResponse{IDs: ids})
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	sess, ok := ctx.Get(ctxSessionKey).(attendance.Session)
	if !ok {
		return errors.New("session not found in echo.Context")
	}
	return ctx.JSON(http.StatusOK, sess)
}

// destroy deletes every record of the session.
func (api *sessionApi) destroy(ctx echo.Context) error {
	sess, ok := ctx.Get(ctxSessionKey).(attendance.Session)
	if !ok {
		return errors.New("session not found in echo.Context")
	}

	if err := api.svc.DeleteSession(ctx.Request().Context(), sess); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) updateStatuses(ctx echo.Context) error {
	sess, ok := ctx.Get(ctxSessionKey).(attendance.Session)
	if !ok {
		return errors.New("session not found in echo.Context")
	}

	var data UpdateStatusesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatusesRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.CommitStatusEdits(ctx.Request().Context(), sess, data.Statuses); err != nil {
		return errors.Wrap(err, "committing status edits")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// live streams the sessions as server-sent events: one `sessions` event per change,
// or a final `error` event when the feed fails.
func (api *sessionApi) live(ctx echo.Context) error {
	q, sf, err := bindRecordQuery(ctx, api.svc.Location())
	if err != nil {
		return err
	}
	if err = q.Validate(); err != nil {
		return err
	}

	l := api.svc.StartListening(q)
	defer l.Close()

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case _, ok := <-l.Changed():
			if !ok {
				return nil
			}
			switch l.State() {
			case attendance.StateError:
				return writeEvent(resp, "error", echo.Map{"error": l.Err().Error()})
			case attendance.StateLive:
				sessions := sf.Apply(l.Sessions(), api.svc.Location())
				if err = writeEvent(resp, "sessions", sessions); err != nil {
					return nil // client went away
				}
			}
		}
	}
}

func writeEvent(resp *echo.Response, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	if _, err = fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

// sessionMiddleware loads the session addressed by the URL into the context.
func (api *sessionApi) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess, err := api.svc.Session(ctx.Request().Context(), ctx.Param("date"), ctx.Param("groupId"), ctx.Param("trainerId"))
		if err != nil {
			if errors.Cause(err) == attendance.ErrSessionNotFound {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding session")
		}
		ctx.Set(ctxSessionKey, sess)
		return next(ctx)
	}
}

type (
	CreatedResponse struct {
		IDs []string `json:"ids"`
	}

	// UpdateStatusesRequest maps record IDs to their new status.
	UpdateStatusesRequest struct {
		Statuses map[string]attendance.Status `json:"statuses" validate:"min=1"`
	}
)

func (r *UpdateStatusesRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}
