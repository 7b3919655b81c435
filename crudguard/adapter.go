package crudguard

import (
	"github.com/goliatone/go-crud"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-device-auth/pkg/devicectx"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

const (
	textCodeOperationDisabled = "OPERATION_DISABLED"
	textCodeAccessDenied      = "ACCESS_DENIED"
	textCodeMissingContext    = "CONTEXT_MISSING"
)

// Config drives Adapter construction.
type Config struct {
	Logger types.Logger
	// AllowedOps whitelists the CRUD operations the guarded resource
	// supports. Unlisted operations are rejected before any handler runs.
	AllowedOps map[crud.CrudOperation]bool
}

// Adapter turns go-crud operations into actor resolution and ownership
// enforcement calls. Device resources are user-owned rows; non-admin actors
// only see their own.
type Adapter struct {
	logger     types.Logger
	allowedOps map[crud.CrudOperation]bool
}

// GuardInput captures per-request parameters supplied by transports.
type GuardInput struct {
	Context   crud.Context
	Operation crud.CrudOperation
	// OwnerID is the user who owns the targeted row, when known up front.
	OwnerID uuid.UUID
	Bypass  *BypassConfig
}

// GuardResult reports the resolved actor metadata returned by the adapter.
type GuardResult struct {
	Actor        types.ActorRef
	Operation    crud.CrudOperation
	Bypassed     bool
	BypassReason string
}

// BypassConfig explicitly allows guard skips for whitelisted routes (e.g.
// schema exports). It must never be enabled by default.
type BypassConfig struct {
	Enabled bool
	Reason  string
}

// NewAdapter constructs a guard adapter and validates the supplied config.
func NewAdapter(cfg Config) (*Adapter, error) {
	if len(cfg.AllowedOps) == 0 {
		return nil, goerrors.New("go-device-auth: allowed operations must be provided", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithTextCode(textCodeOperationDisabled)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Adapter{
		logger:     logger,
		allowedOps: cloneOps(cfg.AllowedOps),
	}, nil
}

// Enforce resolves the actor, optionally bypasses, and applies the
// operation whitelist and row-ownership policy.
func (a *Adapter) Enforce(in GuardInput) (GuardResult, error) {
	if in.Context == nil {
		return GuardResult{}, goerrors.New("go-device-auth: crudguard requires a context", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithTextCode(textCodeMissingContext)
	}

	actor, err := devicectx.ResolveActor(in.Context.UserContext())
	if err != nil {
		return GuardResult{}, err
	}

	if in.Bypass != nil && in.Bypass.Enabled {
		a.logger.Info("crudguard: bypassing guard enforcement",
			"operation", string(in.Operation),
			"reason", in.Bypass.Reason,
		)
		return GuardResult{
			Actor:        actor,
			Operation:    in.Operation,
			Bypassed:     true,
			BypassReason: in.Bypass.Reason,
		}, nil
	}

	if !a.allowedOps[in.Operation] {
		return GuardResult{}, goerrors.New("go-device-auth: crud operation disabled for this resource", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(textCodeOperationDisabled)
	}
	if err := EnforceOwnership(actor, in.OwnerID); err != nil {
		return GuardResult{}, err
	}
	return GuardResult{Actor: actor, Operation: in.Operation}, nil
}

// EnforceOwnership rejects non-admin actors targeting another user's rows.
// A nil owner means the row filter is applied later, at query time.
func EnforceOwnership(actor types.ActorRef, ownerID uuid.UUID) error {
	if actor.IsSystemAdmin() || ownerID == uuid.Nil || ownerID == actor.ID {
		return nil
	}
	return goerrors.New("go-device-auth: actors can only access their own devices", goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(textCodeAccessDenied)
}

// ReadOnlyOps whitelists list/show, the only operations device admin
// surfaces expose through go-crud.
func ReadOnlyOps() map[crud.CrudOperation]bool {
	return map[crud.CrudOperation]bool{
		crud.OpRead: true,
		crud.OpList: true,
	}
}

func cloneOps(in map[crud.CrudOperation]bool) map[crud.CrudOperation]bool {
	cp := make(map[crud.CrudOperation]bool, len(in))
	for op, allowed := range in {
		cp[op] = allowed
	}
	return cp
}
