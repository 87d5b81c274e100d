package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewell/agenthub/core"
)

func TestEchoReturnsPayloadText(t *testing.T) {
	out, err := Echo().Invoke(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestPayloadText(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{name: "nil", payload: nil, want: ""},
		{name: "string", payload: "hi", want: "hi"},
		{name: "map with message", payload: map[string]any{"message": "hi", "extra": 1}, want: "hi"},
		{name: "map without message", payload: map[string]any{"k": "v"}, want: `{"k":"v"}`},
		{name: "struct", payload: struct {
			N int `json:"n"`
		}{N: 3}, want: `{"n":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PayloadText(tt.payload))
		})
	}
}

func TestRegistryBuildsBuiltinEcho(t *testing.T) {
	r := NewRegistry()
	inv, err := r.Build("echo", nil)
	require.NoError(t, err)

	out, err := inv.Invoke(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", out)
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("nope", nil)
	assert.Error(t, err)
}

func TestRegistryCustomFactory(t *testing.T) {
	r := NewRegistry()
	r.Register("upper", func(cfg map[string]any) (core.Invoker, error) {
		prefix, _ := cfg["prefix"].(string)
		return Func(func(_ context.Context, payload any) (any, error) {
			return prefix + PayloadText(payload), nil
		}), nil
	})

	inv, err := r.Build("upper", map[string]any{"prefix": ">> "})
	require.NoError(t, err)
	out, err := inv.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, ">> hi", out)

	assert.Equal(t, []string{"echo", "upper"}, r.Names())
}
