package crudsvc

import (
	"testing"

	"github.com/goliatone/go-device-auth/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestDeviceServiceMetadataRegisters(t *testing.T) {
	svc := NewDeviceService(DeviceServiceConfig{})

	meta := svc.GetMetadata()
	require.Equal(t, "device", meta.Name)
	require.Len(t, meta.Routes, 2, "only the read routes are exposed")

	reg := schema.NewRegistry()
	reg.Register(svc)

	doc := reg.Document()
	require.NotNil(t, doc)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	_, ok = paths["/devices"]
	require.True(t, ok, "the device list route is part of the aggregated schema")
}
