package core

import "context"

// Logger is any service that can log messages.
// args may contain errors, extra data (map[string]interface{}) and at most one Actor.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies who triggered an operation. Resolved by the auth layer from token claims.
type Actor struct {
	ID       string
	Username string
	Role     string
}

type nopLogger struct{}

// NopLogger discards everything but Fatal, which still panics.
var NopLogger Logger = nopLogger{}

func (nopLogger) Debug(string, ...interface{})       {}
func (nopLogger) Info(string, ...interface{})        {}
func (nopLogger) Warn(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})       {}
func (nopLogger) Fatal(msg string, _ ...interface{}) { panic(msg) }

type actorCtxKey struct{}

// WithActor returns a copy of ctx carrying the Actor behind the current operation.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFrom returns the Actor stored in ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(Actor)
	return actor, ok
}
