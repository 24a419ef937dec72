package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTenantTier(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetTenantTier(ctx, "acme")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetTenantTier(ctx, "acme", TierBasic))
	tier, err := s.GetTenantTier(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, TierBasic, tier)

	require.NoError(t, s.SetTenantTier(ctx, "acme", TierEnterprise))
	tier, err = s.GetTenantTier(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, TierEnterprise, tier)
}

func TestDeploymentLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	d := &Deployment{
		TenantID:   "acme",
		InstanceID: "i-1",
		PipelineID: "pipe-1",
		Size:       "t3.small",
		Region:     "eu-west-1",
		Metadata:   map[string]string{MetaImageID: "ami-1", "custom": "x"},
	}
	require.NoError(t, s.CreateDeployment(ctx, d))
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, StatusActive, d.Status)

	got, err := s.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "i-1", got.InstanceID)
	assert.Equal(t, "x", got.Metadata["custom"])

	active, err := s.FindActiveDeployment(ctx, "acme", "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, active.ID)

	_, err = s.FindActiveDeployment(ctx, "other-tenant", "pipe-1")
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := s.CountActiveDeployments(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got.Status = StatusTerminated
	got.Metadata[MetaTerminatedAt] = "2026-01-01T00:00:00Z"
	require.NoError(t, s.UpdateDeployment(ctx, got))

	count, err = s.CountActiveDeployments(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = s.FindActiveDeployment(ctx, "acme", "pipe-1")
	assert.ErrorIs(t, err, ErrNotFound)

	reloaded, err := s.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, reloaded.Status)
	assert.Equal(t, "x", reloaded.Metadata["custom"])
	assert.Equal(t, "2026-01-01T00:00:00Z", reloaded.Metadata[MetaTerminatedAt])

	all, err := s.ListDeployments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetDeployment_NotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	_, err := s.GetDeployment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateDeployment(context.Background(), &Deployment{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeys_FirstMatchByPairName(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &SSHKey{Name: "a", KeyPairName: "deploy", Content: "A", EncodedContent: "QQ==", CreatedAt: base}
	second := &SSHKey{Name: "b", KeyPairName: "deploy", Content: "B", EncodedContent: "Qg==", CreatedAt: base.Add(time.Hour)}
	require.NoError(t, s.CreateKey(ctx, second))
	require.NoError(t, s.CreateKey(ctx, first))

	got, err := s.GetKeyByPairName(ctx, "deploy")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.GetKeyByPairName(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)

	byID, err := s.GetKey(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", byID.Content)

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "a", keys[0].Name)
}

func TestKeys_OldestWithinSameSecond(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	whole := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
	later := &SSHKey{Name: "later", KeyPairName: "deploy", Content: "B", CreatedAt: whole.Add(100 * time.Millisecond)}
	earlier := &SSHKey{Name: "earlier", KeyPairName: "deploy", Content: "A", CreatedAt: whole}
	require.NoError(t, s.CreateKey(ctx, later))
	require.NoError(t, s.CreateKey(ctx, earlier))

	got, err := s.GetKeyByPairName(ctx, "deploy")
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, got.ID)
	assert.True(t, got.CreatedAt.Equal(whole))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "earlier", keys[0].Name)
}

func TestAssociateKey(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	k := &SSHKey{Name: "a", KeyPairName: "deploy", Content: "A", EncodedContent: "QQ=="}
	require.NoError(t, s.CreateKey(ctx, k))
	require.NoError(t, s.AssociateKey(ctx, k.ID, "dep-1"))

	got, err := s.GetKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, "dep-1", got.DeploymentID)

	assert.ErrorIs(t, s.AssociateKey(ctx, "missing", "dep-1"), ErrNotFound)
}

func TestPipelineDeploymentConfig(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetDeploymentConfig(ctx, "pipe-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SaveDeploymentConfig(ctx, "pipe-1", []byte(`{}`)), ErrNotFound)

	require.NoError(t, s.UpsertPipeline(ctx, Pipeline{ID: "pipe-1", TenantID: "acme"}))
	blob, err := s.GetDeploymentConfig(ctx, "pipe-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(blob))

	require.NoError(t, s.SaveDeploymentConfig(ctx, "pipe-1", []byte(`{"keyPairName":"deploy"}`)))
	blob, err = s.GetDeploymentConfig(ctx, "pipe-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"keyPairName":"deploy"}`, string(blob))
}

func TestUsageEvents(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	require.NoError(t, s.RecordUsage(ctx, "dep-1", UsageStart, at))
	require.NoError(t, s.RecordUsage(ctx, "dep-1", UsageEnd, at.Add(time.Hour)))

	events, err := s.ListUsage(ctx, "dep-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, UsageStart, events[0].Kind)
	assert.Equal(t, UsageEnd, events[1].Kind)
	assert.True(t, events[0].At.Equal(at))
}
