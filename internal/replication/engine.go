package replication

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/replicad/internal/ldap"
)

// DefaultRetryAttempts is the number of times a change is attempted when the
// replica reports it is down.
const DefaultRetryAttempts = 2

// SessionProvider establishes and releases replica sessions.
type SessionProvider interface {
	EnsureSession(ctx context.Context, target *ldapclient.ReplicaTarget) error
	Teardown(ctx context.Context, target *ldapclient.ReplicaTarget) error
}

var _ SessionProvider = (*ldapclient.SessionManager)(nil)

// Engine applies change records to a replica, rebinding when the server
// drops the session.
type Engine struct {
	sessions   SessionProvider
	dispatcher *Dispatcher
	attempts   int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRetryAttempts sets how many times a change is attempted against a
// replica that reports it is down. Values below one are treated as one.
func WithRetryAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.attempts = n
	}
}

// NewEngine creates an Engine using sessions from sp.
func NewEngine(sp SessionProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		sessions:   sp,
		dispatcher: NewDispatcher(),
		attempts:   DefaultRetryAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type engineState int

const (
	stateStart engineState = iota
	stateHaveSession
	stateRetrying
	stateDone
)

// Apply replays rec against target.
//
// A bind failure yields a Retryable outcome, or Fatal when the target is
// misconfigured. A server-down result tears the session down and tries again
// until the attempt budget is spent, after which the outcome is Fatal. Other
// failures are Fatal and leave the session in place.
func (e *Engine) Apply(ctx context.Context, target *ldapclient.ReplicaTarget, rec *ChangeRecord) Outcome {
	ctx = tflog.SubsystemSetField(ctx, ldapclient.SubsystemReplication, "apply_id", uuid.NewString())
	ctx = tflog.SubsystemSetField(ctx, ldapclient.SubsystemReplication, "replica", target.String())

	var (
		out    Outcome
		budget = e.attempts
		state  = stateStart
	)

	for state != stateDone {
		switch state {
		case stateStart:
			if err := e.sessions.EnsureSession(ctx, target); err != nil {
				out = bindOutcome(err)
				state = stateDone
				continue
			}
			state = stateHaveSession

		case stateHaveSession:
			out = e.dispatcher.Apply(ctx, target, rec)
			if out.Status == StatusRetryable {
				state = stateRetrying
			} else {
				state = stateDone
			}

		case stateRetrying:
			// Teardown logs unbind failures; the next bind starts fresh regardless.
			_ = e.sessions.Teardown(ctx, target)
			budget--
			if budget > 0 {
				tflog.SubsystemInfo(ctx, ldapclient.SubsystemReplication, "Replica went away, rebinding", map[string]any{
					"dn":                 rec.DN,
					"attempts_remaining": budget,
				})
				state = stateStart
				continue
			}
			out.Status = StatusFatal
			state = stateDone
		}
	}

	fields := rec.Fields()
	fields["status"] = out.Status.String()
	if out.Status != StatusOK {
		fields["code"] = out.Code
		fields["message"] = out.Message
		fields["category"] = string(out.Category())
		tflog.SubsystemWarn(ctx, ldapclient.SubsystemReplication, "Change not applied", fields)
	} else {
		tflog.SubsystemDebug(ctx, ldapclient.SubsystemReplication, "Change applied", fields)
	}

	return out
}
