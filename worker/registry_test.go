package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/swarmflow/types"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&Func{WorkerRole: types.RoleScout}))
	require.NoError(t, r.Register(&Func{WorkerRole: types.RoleRedTeam}))

	w, ok := r.Get(types.RoleScout)
	require.True(t, ok)
	assert.Equal(t, types.RoleScout, w.Role())

	_, ok = r.Get(types.RoleElite)
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_RejectsNilAndRoleless(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Func{}))
}

func TestRegistry_CollectionWorkersCanonicalOrder(t *testing.T) {
	r := NewRegistry()
	for _, role := range []types.Role{types.RoleMarket, types.RoleScout, types.RoleTechnical, types.RoleExperience, types.RoleElite} {
		require.NoError(t, r.Register(&Func{WorkerRole: role}))
	}

	got := r.CollectionWorkers()
	require.Len(t, got, 4)
	assert.Equal(t, types.CollectionRoles(), []types.Role{
		got[0].Role(), got[1].Role(), got[2].Role(), got[3].Role(),
	})
}

func TestFunc_ExecuteDefaultsToEmptyContribution(t *testing.T) {
	w := &Func{WorkerRole: types.RoleScout}
	contrib, err := w.Execute(context.Background(), Task{Subject: "widget"})
	require.NoError(t, err)
	assert.True(t, contrib.Empty())
}
