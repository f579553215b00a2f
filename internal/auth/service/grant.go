package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// GrantState is a step of a token request.
type GrantState int

const (
	GrantReceived GrantState = iota
	GrantClientAuthenticated
	GrantValidated
	GrantTokenIssued
	GrantRejected
)

func (s GrantState) String() string {
	switch s {
	case GrantReceived:
		return "received"
	case GrantClientAuthenticated:
		return "client_authenticated"
	case GrantValidated:
		return "grant_validated"
	case GrantTokenIssued:
		return "token_issued"
	case GrantRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// GrantOutcome is reported once per token request.
type GrantOutcome struct {
	GrantType string
	ClientID  string
	State     GrantState // GrantTokenIssued or GrantRejected
	Err       error      // nil when issued
	Duration  time.Duration
}

// GrantObserver receives the terminal state of every token request.
type GrantObserver interface {
	ObserveGrant(ctx context.Context, outcome GrantOutcome)
}

// grantRun tracks one request through the state machine.
type grantRun struct {
	ctx      context.Context
	logger   *slog.Logger
	observer GrantObserver
	started  time.Time
	outcome  GrantOutcome
}

func newGrantRun(ctx context.Context, observer GrantObserver, grantType, clientID string) *grantRun {
	return &grantRun{
		ctx:      ctx,
		logger:   slogx.FromContext(ctx).With("grant_type", grantType, "client_id", clientID),
		observer: observer,
		started:  time.Now(),
		outcome: GrantOutcome{
			GrantType: grantType,
			ClientID:  clientID,
			State:     GrantReceived,
		},
	}
}

func (g *grantRun) advance(to GrantState) {
	g.logger.DebugContext(g.ctx, "grant transition", "from", g.outcome.State.String(), "to", to.String())
	g.outcome.State = to
	if to == GrantTokenIssued {
		g.finish()
	}
}

// reject moves to GrantRejected and returns err for chaining.
func (g *grantRun) reject(err error) error {
	g.logger.DebugContext(g.ctx, "grant transition",
		"from", g.outcome.State.String(),
		"to", GrantRejected.String(),
		"error", err,
	)
	g.outcome.State = GrantRejected
	g.outcome.Err = err
	g.finish()
	return err
}

func (g *grantRun) finish() {
	if g.observer == nil {
		return
	}
	g.outcome.Duration = time.Since(g.started)
	g.observer.ObserveGrant(g.ctx, g.outcome)
}
