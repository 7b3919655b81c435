package crudguard

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-crud"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

func TestAdapterEnforceAllowsOwner(t *testing.T) {
	adapter := newTestAdapter(t)

	actorID := uuid.New()
	ctx := newStubCrudContext(withActor(actorID, "user"))

	result, err := adapter.Enforce(GuardInput{
		Context:   ctx,
		Operation: crud.OpList,
		OwnerID:   actorID,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Actor.ID != actorID {
		t.Fatal("expected resolved actor to match the auth context")
	}
	if result.Bypassed {
		t.Fatal("expected no bypass on the regular path")
	}
}

func TestAdapterEnforceBypassSkipsChecks(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := newStubCrudContext(withActor(uuid.New(), "user"))

	result, err := adapter.Enforce(GuardInput{
		Context:   ctx,
		Operation: crud.OpDelete,
		OwnerID:   uuid.New(),
		Bypass: &BypassConfig{
			Enabled: true,
			Reason:  "schema export",
		},
	})
	if err != nil {
		t.Fatalf("expected bypass to succeed, got %v", err)
	}
	if !result.Bypassed {
		t.Fatal("expected bypass flag in result")
	}
	if result.BypassReason != "schema export" {
		t.Fatalf("expected bypass reason to propagate, got %s", result.BypassReason)
	}
}

func TestAdapterRejectsDisabledOperation(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := newStubCrudContext(withActor(uuid.New(), "user"))

	_, err := adapter.Enforce(GuardInput{
		Context:   ctx,
		Operation: crud.OpDelete,
	})
	if err == nil {
		t.Fatal("expected unlisted operation to be rejected")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors.Error, got %T", err)
	}
	if richErr.TextCode != textCodeOperationDisabled {
		t.Fatalf("expected text code %s, got %s", textCodeOperationDisabled, richErr.TextCode)
	}
}

func TestAdapterRejectsForeignRows(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := newStubCrudContext(withActor(uuid.New(), "user"))

	_, err := adapter.Enforce(GuardInput{
		Context:   ctx,
		Operation: crud.OpRead,
		OwnerID:   uuid.New(),
	})
	if err == nil {
		t.Fatal("expected ownership enforcement failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors.Error, got %T", err)
	}
	if richErr.TextCode != textCodeAccessDenied {
		t.Fatalf("expected text code %s, got %s", textCodeAccessDenied, richErr.TextCode)
	}
}

func TestAdapterAdminSeesAllRows(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := newStubCrudContext(withActor(uuid.New(), "system_admin"))

	_, err := adapter.Enforce(GuardInput{
		Context:   ctx,
		Operation: crud.OpRead,
		OwnerID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("expected admin to clear ownership, got %v", err)
	}
}

func TestAdapterMissingActorReturnsError(t *testing.T) {
	adapter := newTestAdapter(t)
	_, err := adapter.Enforce(GuardInput{
		Context:   newStubCrudContext(context.Background()),
		Operation: crud.OpRead,
	})
	if err == nil {
		t.Fatal("expected error when actor context missing")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors.Error, got %T", err)
	}
	if richErr.TextCode != "ACTOR_CONTEXT_INVALID" {
		t.Fatalf("expected text code ACTOR_CONTEXT_INVALID, got %s", richErr.TextCode)
	}
}

func TestAdapterFallsBackToClaims(t *testing.T) {
	adapter := newTestAdapter(t)

	actorID := uuid.New()
	claims := &testClaims{
		subject: actorID.String(),
		uid:     actorID.String(),
		role:    "user",
	}
	ctx := auth.WithClaimsContext(context.Background(), claims)

	result, err := adapter.Enforce(GuardInput{
		Context:   newStubCrudContext(ctx),
		Operation: crud.OpRead,
		OwnerID:   actorID,
	})
	if err != nil {
		t.Fatalf("expected fallback to claims, got %v", err)
	}
	if result.Actor.ID != actorID {
		t.Fatal("expected actor resolved from claims")
	}
}

func TestNewAdapterRequiresOps(t *testing.T) {
	if _, err := NewAdapter(Config{}); err == nil {
		t.Fatal("expected construction to fail without an operation whitelist")
	}
}

func TestEnforceOwnership(t *testing.T) {
	owner := uuid.New()
	self := types.ActorRef{ID: owner, Type: "user"}
	admin := types.ActorRef{ID: uuid.New(), Type: "system_admin"}
	stranger := types.ActorRef{ID: uuid.New(), Type: "user"}

	if err := EnforceOwnership(self, owner); err != nil {
		t.Fatalf("owners access their own rows: %v", err)
	}
	if err := EnforceOwnership(admin, owner); err != nil {
		t.Fatalf("admins access any row: %v", err)
	}
	if err := EnforceOwnership(stranger, uuid.Nil); err != nil {
		t.Fatalf("a nil owner defers filtering to the query: %v", err)
	}
	if err := EnforceOwnership(stranger, owner); err == nil {
		t.Fatal("expected foreign rows to be rejected")
	}
}

// helpers

func withActor(actorID uuid.UUID, role string) context.Context {
	return auth.WithActorContext(context.Background(), &auth.ActorContext{
		ActorID: actorID.String(),
		Role:    role,
	})
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(Config{
		Logger:     types.NopLogger{},
		AllowedOps: ReadOnlyOps(),
	})
	if err != nil {
		t.Fatalf("unexpected adapter construction error: %v", err)
	}
	return adapter
}

type stubCrudContext struct {
	ctx     context.Context
	status  int
	body    []byte
	queries map[string]string
}

func newStubCrudContext(ctx context.Context) *stubCrudContext {
	return &stubCrudContext{
		ctx:     ctx,
		queries: map[string]string{},
	}
}

func (s *stubCrudContext) UserContext() context.Context {
	return s.ctx
}

func (s *stubCrudContext) Params(key string, defaultValue ...string) string {
	return ""
}

func (s *stubCrudContext) BodyParser(out any) error {
	return nil
}

func (s *stubCrudContext) Query(key string, defaultValue ...string) string {
	if v, ok := s.queries[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (s *stubCrudContext) QueryValues(key string) []string {
	if v, ok := s.queries[key]; ok {
		return []string{v}
	}
	return nil
}

func (s *stubCrudContext) QueryInt(key string, defaultValue ...int) int {
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

func (s *stubCrudContext) Queries() map[string]string {
	return s.queries
}

func (s *stubCrudContext) Body() []byte {
	return s.body
}

func (s *stubCrudContext) Status(status int) crud.Response {
	s.status = status
	return s
}

func (s *stubCrudContext) JSON(data any, ctype ...string) error {
	return nil
}

func (s *stubCrudContext) SendStatus(status int) error {
	s.status = status
	return nil
}

type testClaims struct {
	subject  string
	uid      string
	role     string
	metadata map[string]any
	res      map[string]string
}

func (t *testClaims) Subject() string                  { return t.subject }
func (t *testClaims) UserID() string                   { return t.uid }
func (t *testClaims) Role() string                     { return t.role }
func (t *testClaims) CanRead(string) bool              { return true }
func (t *testClaims) CanEdit(string) bool              { return true }
func (t *testClaims) CanCreate(string) bool            { return true }
func (t *testClaims) CanDelete(string) bool            { return true }
func (t *testClaims) HasRole(role string) bool         { return t.role == role }
func (t *testClaims) IsAtLeast(string) bool            { return true }
func (t *testClaims) Expires() time.Time               { return time.Time{} }
func (t *testClaims) IssuedAt() time.Time              { return time.Time{} }
func (t *testClaims) ResourceRoles() map[string]string { return t.res }
func (t *testClaims) ClaimsMetadata() map[string]any   { return t.metadata }
