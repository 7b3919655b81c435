package validation

import (
	"context"

	"github.com/goliatone/go-auth/middleware/jwtware"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-device-auth/pkg/devicectx"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// SchemaNotifier receives callbacks whenever an authenticated actor is
// validated so schema exporters can refresh caches.
type SchemaNotifier interface {
	Notify(ctx context.Context, actorID uuid.UUID, metadata map[string]any)
}

// ListenerOptions customize the validation listener behaviour.
type ListenerOptions struct {
	AuditSink      types.AuditSink
	Logger         types.Logger
	SchemaNotifier SchemaNotifier
}

// NewListener returns a jwtware.ValidationListener that emits audit records
// and notifies schema observers whenever a user token is validated.
func NewListener(opts ListenerOptions) jwtware.ValidationListener {
	logger := opts.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return func(ctx router.Context, claims jwtware.AuthClaims) error {
		actor, err := devicectx.ResolveActor(ctx.Context())
		if err != nil {
			logger.Error("validation listener failed to resolve actor", err)
			return nil
		}
		data := map[string]any{"actor_type": actor.Type}
		if deviceClaims, ok := devicectx.ClaimsFromRouterContext(ctx); ok {
			data["device_id"] = deviceClaims.SubjectID.String()
		}
		if opts.AuditSink != nil {
			record := types.AuditRecord{
				UserID:  actor.ID,
				ActorID: actor.ID,
				Verb:    "auth.validated",
				Data:    data,
			}
			if err := opts.AuditSink.Log(ctx.Context(), record); err != nil {
				logger.Error("validation audit sink failed", err)
			}
		}
		if opts.SchemaNotifier != nil {
			opts.SchemaNotifier.Notify(ctx.Context(), actor.ID, data)
		}
		return nil
	}
}
