package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rterrors "github.com/c360/runtimekit/errors"
)

func descriptorNamed(name string, deps ...string) *Descriptor {
	return &Descriptor{
		Name:         name,
		Enabled:      true,
		Dependencies: deps,
		Factory:      func(Dependencies) (any, error) { return struct{}{}, nil },
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(descriptorNamed("config")))
	require.NoError(t, reg.Register(descriptorNamed("cache", "config")))

	desc, err := reg.Get("cache")
	require.NoError(t, err)
	assert.Equal(t, []string{"config"}, desc.Dependencies)
	assert.True(t, reg.Has("config"))
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(descriptorNamed("cache")))

	err := reg.Register(descriptorNamed("cache"))
	require.Error(t, err)
	assert.ErrorIs(t, err, rterrors.ErrDuplicateName)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryUnknownComponent(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, rterrors.ErrUnknownComponent)
}

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		require.NoError(t, reg.Register(descriptorNamed(n)))
	}

	var got []string
	for _, d := range reg.List() {
		got = append(got, d.Name)
	}
	assert.Equal(t, names, got)
}

func TestRegistryEnabledFilter(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(descriptorNamed("on")))

	off := descriptorNamed("off")
	off.Enabled = false
	require.NoError(t, reg.Register(off))

	enabled := reg.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "on", enabled[0].Name)
}

func TestDescriptorValidate(t *testing.T) {
	t.Run("no name", func(t *testing.T) {
		d := descriptorNamed("x")
		d.Name = ""
		assert.Error(t, d.Validate())
	})

	t.Run("no factory", func(t *testing.T) {
		d := descriptorNamed("x")
		d.Factory = nil
		assert.Error(t, d.Validate())
	})

	t.Run("self dependency", func(t *testing.T) {
		d := descriptorNamed("x", "x")
		err := d.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, rterrors.ErrCycleDetected)
	})
}
