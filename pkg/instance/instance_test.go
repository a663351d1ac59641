package instance

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/auth"
	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// hash builds a syntactically valid sha-256 hex digest
func hash(c byte) string {
	return strings.Repeat(string(c), 64)
}

func newTestService(t *testing.T) (*Service, storage.Store, *events.Bus) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	bus := events.NewBus()
	return NewService(store, bus, auth.NewRecorder(store)), store, bus
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from types.InstanceStatus
		to   types.InstanceStatus
		want bool
	}{
		{types.StatusDeploying, types.StatusRunning, true},
		{types.StatusDeploying, types.StatusError, true},
		{types.StatusDeploying, types.StatusSuspended, false},
		{types.StatusRunning, types.StatusSuspended, true},
		{types.StatusRunning, types.StatusStopped, true},
		{types.StatusRunning, types.StatusDestroying, true},
		{types.StatusRunning, types.StatusError, true},
		{types.StatusRunning, types.StatusDeploying, false},
		{types.StatusSuspended, types.StatusRunning, true},
		{types.StatusSuspended, types.StatusStopped, false},
		{types.StatusStopped, types.StatusRunning, true},
		{types.StatusError, types.StatusRunning, true},
		{types.StatusError, types.StatusStopped, true},
		{types.StatusDestroying, types.StatusUnknown, true},
		{types.StatusDestroying, types.StatusRunning, false},
		{types.StatusUnknown, types.StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRegisterCreatesDeploying(t *testing.T) {
	svc, store, _ := newTestService(t)

	inst, err := svc.Register("u1", &RegisterRequest{
		Name:       "web-1",
		Provider:   types.ProviderFly,
		Region:     "fra",
		Extensions: []string{"git", "node"},
		ConfigHash: hash('a'),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeploying, inst.Status)
	assert.NotEmpty(t, inst.ID)

	events, err := store.ListEvents(inst.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventDeploy, events[0].EventType)

	audits, err := store.ListAudit(10)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, types.AuditCreate, audits[0].Action)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name string
		req  *RegisterRequest
	}{
		{"uppercase name", &RegisterRequest{Name: "Web-1", Provider: types.ProviderFly}},
		{"leading dash", &RegisterRequest{Name: "-web", Provider: types.ProviderFly}},
		{"bad provider", &RegisterRequest{Name: "web-1", Provider: "aws"}},
		{"too many extensions", &RegisterRequest{
			Name:       "web-1",
			Provider:   types.ProviderFly,
			Extensions: make([]string, types.MaxInstanceExtensions+1),
		}},
		{"short config hash", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly, ConfigHash: "abc123"}},
		{"non-hex config hash", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly, ConfigHash: strings.Repeat("z", 64)}},
		{"uppercase config hash", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly, ConfigHash: strings.Repeat("A", 64)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register("u1", tt.req)
			_, ok := types.IsValidation(err)
			assert.True(t, ok)
		})
	}
}

func TestRegisterUpsert(t *testing.T) {
	svc, _, _ := newTestService(t)

	first, err := svc.Register("u1", &RegisterRequest{
		Name: "web-1", Provider: types.ProviderFly, Region: "fra", ConfigHash: hash('a'),
	})
	require.NoError(t, err)

	// Same name refreshes in place
	second, err := svc.Register("u1", &RegisterRequest{
		Name: "web-1", Provider: types.ProviderFly, Region: "fra",
		ConfigHash: hash('b'), SSHEndpoint: "ssh://web-1", Extensions: []string{"git"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, hash('b'), second.ConfigHash)
	assert.Equal(t, "ssh://web-1", second.SSHEndpoint)

	// Different provider on the same name is a conflict
	_, err = svc.Register("u1", &RegisterRequest{
		Name: "web-1", Provider: types.ProviderDocker, Region: "fra",
	})
	assert.ErrorIs(t, err, types.ErrConflict)

	// Different region too
	_, err = svc.Register("u1", &RegisterRequest{
		Name: "web-1", Provider: types.ProviderFly, Region: "iad",
	})
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestSetStatusRejectsIllegalTransition(t *testing.T) {
	svc, store, _ := newTestService(t)

	inst, err := svc.Register("u1", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly})
	require.NoError(t, err)

	_, err = svc.SetStatus(inst.ID, types.StatusSuspended)
	assert.ErrorIs(t, err, types.ErrInvalidState)

	// Nothing changed
	stored, err := store.GetInstance(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeploying, stored.Status)
}

func TestSuspendResumeRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)

	inst, err := svc.Register("u1", &RegisterRequest{
		Name: "web-1", Provider: types.ProviderFly,
		Extensions: []string{"git", "node"}, ConfigHash: hash('a'),
	})
	require.NoError(t, err)
	_, err = svc.SetStatus(inst.ID, types.StatusRunning)
	require.NoError(t, err)

	suspended, err := svc.Suspend("u1", inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuspended, suspended.Status)

	resumed, err := svc.Resume("u1", inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, resumed.Status)
	assert.Equal(t, []string{"git", "node"}, resumed.Extensions)
	assert.Equal(t, hash('a'), resumed.ConfigHash)
}

func TestResumeRequiresSuspended(t *testing.T) {
	svc, _, _ := newTestService(t)

	inst, err := svc.Register("u1", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly})
	require.NoError(t, err)
	_, err = svc.SetStatus(inst.ID, types.StatusRunning)
	require.NoError(t, err)

	_, err = svc.Resume("u1", inst.ID)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestClone(t *testing.T) {
	svc, _, bus := newTestService(t)

	sub := bus.Subscribe(10)
	defer bus.Unsubscribe(sub)

	src, err := svc.Register("u1", &RegisterRequest{
		Name: "web-1", Provider: types.ProviderFly, Region: "fra",
		Extensions: []string{"git"}, ConfigHash: hash('a'), SSHEndpoint: "ssh://web-1",
	})
	require.NoError(t, err)

	clone, err := svc.Clone("u1", src.ID)
	require.NoError(t, err)
	assert.Equal(t, "web-1-clone", clone.Name)
	assert.Equal(t, types.StatusDeploying, clone.Status)
	assert.Equal(t, src.Extensions, clone.Extensions)
	assert.Equal(t, src.ConfigHash, clone.ConfigHash)
	assert.Empty(t, clone.SSHEndpoint)

	// Cloning again collides on the -clone name
	_, err = svc.Clone("u1", src.ID)
	assert.ErrorIs(t, err, types.ErrConflict)

	// Register + clone each published an event frame
	frame := <-sub.C()
	assert.Equal(t, "event:instance", frame.Type)
	frame = <-sub.C()
	assert.Equal(t, "event:instance", frame.Type)
	assert.Equal(t, clone.ID, frame.InstanceID)
}

func TestRedeploy(t *testing.T) {
	svc, _, _ := newTestService(t)

	inst, err := svc.Register("u1", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly})
	require.NoError(t, err)
	_, err = svc.SetStatus(inst.ID, types.StatusRunning)
	require.NoError(t, err)

	redeployed, err := svc.Redeploy("u1", inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeploying, redeployed.Status)

	// Failed redeploy ends in ERROR
	failed, err := svc.SetStatus(inst.ID, types.StatusError)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, failed.Status)
}

func TestRedeployBlockedWhileDestroying(t *testing.T) {
	svc, _, _ := newTestService(t)

	inst, err := svc.Register("u1", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly})
	require.NoError(t, err)
	_, err = svc.SetStatus(inst.ID, types.StatusRunning)
	require.NoError(t, err)
	_, err = svc.Destroy("u1", inst.ID)
	require.NoError(t, err)

	_, err = svc.Redeploy("u1", inst.ID)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestDestroyAndMarkDestroyed(t *testing.T) {
	svc, store, _ := newTestService(t)

	inst, err := svc.Register("u1", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly})
	require.NoError(t, err)
	_, err = svc.SetStatus(inst.ID, types.StatusRunning)
	require.NoError(t, err)

	destroyed, err := svc.Destroy("u1", inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDestroying, destroyed.Status)

	final, err := svc.MarkDestroyed(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknown, final.Status)

	// UNKNOWN is terminal
	_, err = svc.SetStatus(inst.ID, types.StatusRunning)
	assert.ErrorIs(t, err, types.ErrInvalidState)

	audits, err := store.ListAudit(10)
	require.NoError(t, err)
	var found bool
	for _, entry := range audits {
		if entry.Action == types.AuditDestroy {
			found = true
		}
	}
	assert.True(t, found)
}

func TestInstallExtension(t *testing.T) {
	svc, store, _ := newTestService(t)

	now := time.Now()
	require.NoError(t, store.CreateExtension(&types.Extension{
		ID: "e1", Slug: "git", Name: "Git", Status: types.ExtensionApproved, CreatedAt: now,
	}))
	require.NoError(t, store.CreateExtension(&types.Extension{
		ID: "e2", Slug: "legacy", Name: "Legacy", Status: types.ExtensionDeprecated, CreatedAt: now,
	}))
	require.NoError(t, store.CreateExtension(&types.Extension{
		ID: "e3", Slug: "draft", Name: "Draft", Status: types.ExtensionPending, CreatedAt: now,
	}))

	inst, err := svc.Register("u1", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly})
	require.NoError(t, err)

	updated, err := svc.InstallExtension("u1", inst.ID, "git")
	require.NoError(t, err)
	assert.Equal(t, []string{"git"}, updated.Extensions)

	installs, err := store.ListExtensionInstallations(inst.ID)
	require.NoError(t, err)
	require.Len(t, installs, 1)
	assert.Equal(t, "git", installs[0].Slug)

	// Duplicate install conflicts
	_, err = svc.InstallExtension("u1", inst.ID, "git")
	assert.ErrorIs(t, err, types.ErrConflict)

	// DEPRECATED and PENDING cannot be newly installed
	_, err = svc.InstallExtension("u1", inst.ID, "legacy")
	_, ok := types.IsValidation(err)
	assert.True(t, ok)
	_, err = svc.InstallExtension("u1", inst.ID, "draft")
	_, ok = types.IsValidation(err)
	assert.True(t, ok)

	// Unknown slug
	_, err = svc.InstallExtension("u1", inst.ID, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRemoveExtension(t *testing.T) {
	svc, store, _ := newTestService(t)

	require.NoError(t, store.CreateExtension(&types.Extension{
		ID: "e1", Slug: "git", Name: "Git", Status: types.ExtensionApproved,
	}))

	inst, err := svc.Register("u1", &RegisterRequest{Name: "web-1", Provider: types.ProviderFly})
	require.NoError(t, err)
	_, err = svc.InstallExtension("u1", inst.ID, "git")
	require.NoError(t, err)

	updated, err := svc.RemoveExtension("u1", inst.ID, "git")
	require.NoError(t, err)
	assert.Empty(t, updated.Extensions)

	installs, err := store.ListExtensionInstallations(inst.ID)
	require.NoError(t, err)
	assert.Empty(t, installs)

	_, err = svc.RemoveExtension("u1", inst.ID, "git")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
