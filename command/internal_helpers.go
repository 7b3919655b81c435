package command

import (
	"context"
	"time"

	"github.com/goliatone/go-device-auth/pkg/types"
)

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}

func safeHooks(hooks types.Hooks) types.Hooks {
	return hooks
}

func safeAuditSink(sink types.AuditSink) types.AuditSink {
	return sink
}

func now(clock types.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}

func logAudit(ctx context.Context, sink types.AuditSink, record types.AuditRecord) {
	if sink == nil {
		return
	}
	_ = sink.Log(ctx, record)
}

func emitAuditHook(ctx context.Context, hooks types.Hooks, record types.AuditRecord) {
	if hooks.AfterAudit == nil {
		return
	}
	hooks.AfterAudit(ctx, record)
}

func emitIssueHook(ctx context.Context, hooks types.Hooks, event types.IssueEvent) {
	if hooks.AfterIssue == nil {
		return
	}
	hooks.AfterIssue(ctx, event)
}

func emitRevocationHook(ctx context.Context, hooks types.Hooks, event types.RevocationEvent) {
	if hooks.AfterRevocation == nil {
		return
	}
	hooks.AfterRevocation(ctx, event)
}

func emitOTPHook(ctx context.Context, hooks types.Hooks, event types.OTPEvent) {
	if hooks.AfterOTP == nil {
		return
	}
	hooks.AfterOTP(ctx, event)
}

func emitMatchHook(ctx context.Context, hooks types.Hooks, event types.MatchEvent) {
	if hooks.AfterMatch == nil {
		return
	}
	hooks.AfterMatch(ctx, event)
}
