package crudsvc

import (
	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-crud"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-device-auth/crudguard"
	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/goliatone/go-device-auth/query"
	"github.com/google/uuid"
)

// DeviceServiceConfig wires dependencies for the device inventory controller.
type DeviceServiceConfig struct {
	Guard     GuardAdapter
	Inventory gocommand.Querier[query.DeviceInventoryFilter, query.DeviceInventoryPage]
	Devices   types.DeviceRepository
}

// DeviceService provides a read-only go-crud service backed by the device
// inventory query so admin panels can list devices without bypassing guards.
type DeviceService struct {
	guard     GuardAdapter
	inventory gocommand.Querier[query.DeviceInventoryFilter, query.DeviceInventoryPage]
	devices   types.DeviceRepository
	logger    types.Logger
}

// NewDeviceService constructs the adapter.
func NewDeviceService(cfg DeviceServiceConfig, opts ...ServiceOption) *DeviceService {
	options := applyOptions(opts)
	return &DeviceService{
		guard:     cfg.Guard,
		inventory: cfg.Inventory,
		devices:   cfg.Devices,
		logger:    options.logger,
	}
}

var _ router.MetadataProvider = (*DeviceService)(nil)

func (s *DeviceService) Create(crud.Context, *types.Device) (*types.Device, error) {
	return nil, notSupported(crud.OpCreate)
}

func (s *DeviceService) CreateBatch(crud.Context, []*types.Device) ([]*types.Device, error) {
	return nil, notSupported(crud.OpCreateBatch)
}

func (s *DeviceService) Update(crud.Context, *types.Device) (*types.Device, error) {
	return nil, notSupported(crud.OpUpdate)
}

func (s *DeviceService) UpdateBatch(crud.Context, []*types.Device) ([]*types.Device, error) {
	return nil, notSupported(crud.OpUpdateBatch)
}

func (s *DeviceService) Delete(crud.Context, *types.Device) error {
	return notSupported(crud.OpDelete)
}

func (s *DeviceService) DeleteBatch(crud.Context, []*types.Device) error {
	return notSupported(crud.OpDeleteBatch)
}

func (s *DeviceService) Index(ctx crud.Context, _ []repository.SelectCriteria) ([]*types.Device, int, error) {
	if s.inventory == nil {
		return nil, 0, goerrors.New("device inventory query missing", goerrors.CategoryInternal).WithCode(goerrors.CodeInternal)
	}
	res, err := s.guard.Enforce(crudguard.GuardInput{
		Context:   ctx,
		Operation: crud.OpList,
	})
	if err != nil {
		return nil, 0, err
	}
	userID := queryUUID(ctx, "user_id")
	if !res.Actor.IsSystemAdmin() {
		userID = res.Actor.ID
	}
	filter := query.DeviceInventoryFilter{
		UserID:     userID,
		Actor:      res.Actor,
		Pagination: types.Pagination{Limit: queryInt(ctx, "limit", 50), Offset: queryInt(ctx, "offset", 0)},
	}
	page, err := s.inventory.Query(ctx.UserContext(), filter)
	if err != nil {
		return nil, 0, err
	}
	records := make([]*types.Device, 0, len(page.Items))
	for _, device := range page.Items {
		clone := device
		records = append(records, sanitizeDevice(&clone))
	}
	return records, page.Total, nil
}

func (s *DeviceService) Show(ctx crud.Context, id string, _ []repository.SelectCriteria) (*types.Device, error) {
	if s.devices == nil {
		return nil, goerrors.New("device repository missing", goerrors.CategoryInternal).WithCode(goerrors.CodeInternal)
	}
	deviceID, err := uuid.Parse(id)
	if err != nil {
		return nil, goerrors.New("invalid device id", goerrors.CategoryValidation).WithCode(goerrors.CodeBadRequest)
	}
	res, err := s.guard.Enforce(crudguard.GuardInput{
		Context:   ctx,
		Operation: crud.OpRead,
	})
	if err != nil {
		return nil, err
	}
	device, err := s.devices.GetDevice(ctx.UserContext(), deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, goerrors.New("device not found", goerrors.CategoryNotFound).WithCode(goerrors.CodeNotFound)
	}
	if err := crudguard.EnforceOwnership(res.Actor, device.UserID); err != nil {
		return nil, err
	}
	return sanitizeDevice(device), nil
}

// GetMetadata describes the read-only device resource so hosts can register
// this service with a schema registry and surface it in admin consoles.
func (s *DeviceService) GetMetadata() router.ResourceMetadata {
	return router.ResourceMetadata{
		Name:       "device",
		PluralName: "devices",
		Schema: router.SchemaMetadata{
			Name: "device",
			Properties: map[string]router.PropertyInfo{
				"id":            {Type: "string", OriginalName: "id"},
				"user_id":       {Type: "string", OriginalName: "user_id"},
				"name":          {Type: "string", OriginalName: "name"},
				"trust_score":   {Type: "integer", OriginalName: "trust_score"},
				"trusted":       {Type: "boolean", OriginalName: "trusted"},
				"renewal_count": {Type: "integer", OriginalName: "renewal_count"},
			},
		},
		Routes: []router.RouteDefinition{
			{Method: router.GET, Path: "/devices", Name: "device:list"},
			{Method: router.GET, Path: "/devices/:id", Name: "device:show"},
		},
	}
}

// sanitizeDevice strips the fingerprint signature, which never leaves the
// persistence layer.
func sanitizeDevice(device *types.Device) *types.Device {
	if device == nil {
		return nil
	}
	clone := *device
	clone.Signature = nil
	return &clone
}
