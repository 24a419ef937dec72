package keys

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/ec2keeper/internal/connectivity"
	"github.com/imamik/ec2keeper/internal/platform/ec2"
	"github.com/imamik/ec2keeper/internal/store"
	testutil "github.com/imamik/ec2keeper/internal/testing"
)

var testCreds = &ec2.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret"}

// fakeArchive is an in-memory Archive.
type fakeArchive struct {
	mu      sync.Mutex
	objects map[string]string
	puts    int
	putErr  error
}

func (a *fakeArchive) PutKey(_ context.Context, name, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.puts++
	if a.putErr != nil {
		return a.putErr
	}
	if a.objects == nil {
		a.objects = map[string]string{}
	}
	a.objects[name] = content
	return nil
}

func (a *fakeArchive) GetKey(_ context.Context, name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.objects[name]; ok {
		return c, nil
	}
	return "", errors.New("object not found")
}

type storeEnv struct {
	keys    *Store
	records *store.SQLiteStore
	ec2     *testutil.EC2Fixture
	dir     string
}

func newStoreEnv(t *testing.T, opts Options) *storeEnv {
	t.Helper()
	records, err := store.Open(filepath.Join(t.TempDir(), "state.db"), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	fixture := testutil.NewEC2Fixture()
	if opts.Dir == "" {
		opts.Dir = filepath.Join(t.TempDir(), "keys")
	}
	if opts.SearchPaths == nil {
		opts.SearchPaths = func(string) []string { return nil }
	}
	return &storeEnv{
		keys:    NewStore(records, fixture.Connector(), connectivity.NewProber(logr.Discard()), logr.Discard(), opts),
		records: records,
		ec2:     fixture,
		dir:     opts.Dir,
	}
}

func fileMode(t *testing.T, path string) os.FileMode {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Mode().Perm()
}

func TestCreate_WithContent(t *testing.T) {
	t.Parallel()
	env := newStoreEnv(t, Options{})
	kp := testutil.GenerateKey(t)
	ctx := testutil.TestContext(t)

	rec, err := env.keys.Create(ctx, CreateRequest{Name: "ci", KeyPairName: "deploy", Content: string(kp.PrivateKey)})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "ci", rec.Name)
	assert.Equal(t, string(kp.PrivateKey), rec.Content)
	assert.Equal(t, base64.StdEncoding.EncodeToString(kp.PrivateKey), rec.EncodedContent)

	path := filepath.Join(env.dir, "deploy.pem")
	assert.Equal(t, os.FileMode(0o600), fileMode(t, path))
	assert.Equal(t, os.FileMode(0o700), fileMode(t, env.dir))

	stored, err := env.keys.GetByPairName(ctx, "deploy")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)

	byID, err := env.keys.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "deploy", byID.KeyPairName)

	all, err := env.keys.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreate_RepairsMalformedContent(t *testing.T) {
	t.Parallel()
	env := newStoreEnv(t, Options{})

	rec, err := env.keys.Create(testutil.TestContext(t), CreateRequest{
		Name:    "deploy",
		Content: "-----BEGIN X----- YWJj ZGVm -----END X-----",
	})
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN X-----\nYWJjZGVm\n-----END X-----", rec.Content)

	decoded, err := base64.StdEncoding.DecodeString(rec.EncodedContent)
	require.NoError(t, err)
	assert.Equal(t, rec.Content, string(decoded))
}

func TestCreate_MintsKeyPair(t *testing.T) {
	t.Parallel()
	env := newStoreEnv(t, Options{})
	kp := testutil.GenerateKey(t)

	var requested string
	env.ec2.Mock().CreateKeyPairFunc = func(_ context.Context, name string) (*ec2.KeyPair, error) {
		requested = name
		return &ec2.KeyPair{ID: "key-1", Name: name, Material: string(kp.PrivateKey)}, nil
	}

	rec, err := env.keys.Create(testutil.TestContext(t), CreateRequest{Name: "deploy", Region: "eu-west-1", Credentials: testCreds})
	require.NoError(t, err)
	assert.Equal(t, "deploy", requested)
	assert.Equal(t, string(kp.PrivateKey), rec.Content)
	assert.FileExists(t, filepath.Join(env.dir, "deploy.pem"))
}

func TestCreate_NoMaterial(t *testing.T) {
	t.Parallel()
	env := newStoreEnv(t, Options{})

	_, err := env.keys.Create(testutil.TestContext(t), CreateRequest{Name: "deploy"})
	assert.ErrorIs(t, err, ErrKeyMaterialMissing)

	_, err = env.keys.Create(testutil.TestContext(t), CreateRequest{Name: "../escape", Content: "x"})
	assert.Error(t, err)
}

func TestCreate_ArchivesBestEffort(t *testing.T) {
	t.Parallel()

	archive := &fakeArchive{}
	env := newStoreEnv(t, Options{Archive: archive})
	_, err := env.keys.Create(testutil.TestContext(t), CreateRequest{Name: "deploy", Content: "-----BEGIN X-----\nYWJj\n-----END X-----"})
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN X-----\nYWJj\n-----END X-----", archive.objects["deploy"])

	failing := &fakeArchive{putErr: errors.New("access denied")}
	env = newStoreEnv(t, Options{Archive: failing})
	_, err = env.keys.Create(testutil.TestContext(t), CreateRequest{Name: "deploy", Content: "-----BEGIN X-----\nYWJj\n-----END X-----"})
	require.NoError(t, err)
	assert.Equal(t, 3, failing.puts)
}

func TestGetForInstance_StoreHit(t *testing.T) {
	t.Parallel()
	env := newStoreEnv(t, Options{})
	env.ec2.RunningAfter(0, "203.0.113.5", "deploy")
	ctx := testutil.TestContext(t)

	created, err := env.keys.Create(ctx, CreateRequest{Name: "deploy", Content: "-----BEGIN X-----\nYWJj\n-----END X-----"})
	require.NoError(t, err)

	got, err := env.keys.GetForInstance(ctx, "i-1", "eu-west-1", *testCreds)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetForInstance_ArchiveHitIsIngested(t *testing.T) {
	t.Parallel()
	archive := &fakeArchive{objects: map[string]string{"deploy": "-----BEGIN X-----\nYWJj\n-----END X-----"}}
	env := newStoreEnv(t, Options{Archive: archive})
	env.ec2.RunningAfter(0, "203.0.113.5", "deploy")
	ctx := testutil.TestContext(t)

	got, err := env.keys.GetForInstance(ctx, "i-1", "eu-west-1", *testCreds)
	require.NoError(t, err)
	assert.Equal(t, "deploy", got.KeyPairName)
	assert.Zero(t, archive.puts)

	stored, err := env.records.GetKeyByPairName(ctx, "deploy")
	require.NoError(t, err)
	assert.Equal(t, got.ID, stored.ID)
}

func TestGetForInstance_FilesystemSearchOrder(t *testing.T) {
	t.Parallel()
	search := t.TempDir()
	first := filepath.Join(search, "a", "deploy")
	second := filepath.Join(search, "b", "deploy.pem")
	testutil.WriteFile(t, search, filepath.Join("a", "deploy"), []byte("not a key"))
	testutil.WriteFile(t, search, filepath.Join("b", "deploy.pem"), []byte("-----BEGIN X----- YWJj -----END X-----"))

	env := newStoreEnv(t, Options{SearchPaths: func(name string) []string {
		assert.Equal(t, "deploy", name)
		return []string{filepath.Join(search, "missing"), first, second}
	}})
	env.ec2.RunningAfter(0, "203.0.113.5", "deploy")
	ctx := testutil.TestContext(t)

	got, err := env.keys.GetForInstance(ctx, "i-1", "eu-west-1", *testCreds)
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN X-----\nYWJj\n-----END X-----", got.Content)

	_, err = env.records.GetKeyByPairName(ctx, "deploy")
	assert.NoError(t, err)
}

func TestLookupForInstance_WritesNothing(t *testing.T) {
	t.Parallel()
	search := t.TempDir()
	path := testutil.WriteFile(t, search, "deploy.pem", []byte("-----BEGIN X----- YWJj -----END X-----"))
	archive := &fakeArchive{}
	env := newStoreEnv(t, Options{
		Archive:     archive,
		SearchPaths: func(string) []string { return []string{path} },
	})
	env.ec2.RunningAfter(0, "203.0.113.5", "deploy")
	ctx := testutil.TestContext(t)

	got, err := env.keys.LookupForInstance(ctx, "i-1", "eu-west-1", *testCreds)
	require.NoError(t, err)
	assert.Empty(t, got.ID)
	assert.Equal(t, "deploy", got.KeyPairName)
	assert.Equal(t, "-----BEGIN X-----\nYWJj\n-----END X-----", got.Content)

	stored, err := env.records.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.NoFileExists(t, filepath.Join(env.dir, "deploy.pem"))
	assert.Zero(t, archive.puts)

	created, err := env.keys.Create(ctx, CreateRequest{Name: "deploy", Content: got.Content})
	require.NoError(t, err)
	got, err = env.keys.LookupForInstance(ctx, "i-1", "eu-west-1", *testCreds)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetForInstance_NotFound(t *testing.T) {
	t.Parallel()
	ctx := testutil.TestContext(t)

	env := newStoreEnv(t, Options{})
	env.ec2.RunningAfter(0, "203.0.113.5", "deploy")
	_, err := env.keys.GetForInstance(ctx, "i-1", "eu-west-1", *testCreds)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	noPair := newStoreEnv(t, Options{})
	noPair.ec2.RunningAfter(0, "203.0.113.5", "")
	_, err = noPair.keys.GetForInstance(ctx, "i-1", "eu-west-1", *testCreds)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	missing := newStoreEnv(t, Options{})
	missing.ec2.Missing()
	_, err = missing.keys.GetForInstance(ctx, "i-1", "eu-west-1", *testCreds)
	assert.True(t, ec2.IsNotFound(err))
}

func TestCandidatePaths(t *testing.T) {
	t.Parallel()
	paths := CandidatePaths("deploy")
	require.NotEmpty(t, paths)
	assert.Equal(t, filepath.Join(SystemKeyDir, "deploy.pem"), paths[len(paths)-1])

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		assert.Equal(t, filepath.Join(home, ".ssh", "deploy"), paths[0])
		assert.Equal(t, filepath.Join(home, ".ssh", "deploy.pem"), paths[1])
	}
}

func TestWriteToFile_Idempotent(t *testing.T) {
	t.Parallel()
	env := newStoreEnv(t, Options{})

	path, err := env.keys.WriteToFile("deploy", "one")
	require.NoError(t, err)
	require.NoError(t, os.Chmod(path, 0o644))

	again, err := env.keys.WriteToFile("deploy", "two")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, os.FileMode(0o600), fileMode(t, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestVerifyKey(t *testing.T) {
	t.Parallel()
	kp := testutil.GenerateKey(t)
	other := testutil.GenerateKey(t)
	srv := testutil.NewSSHServer(t, kp.PublicKey, testutil.EchoHandler)

	records, err := store.Open(filepath.Join(t.TempDir(), "state.db"), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	dir := filepath.Join(t.TempDir(), "keys")
	prober := connectivity.NewProber(logr.Discard(), connectivity.WithSSHPort(srv.Port))
	keys := NewStore(records, testutil.NewEC2Fixture().Connector(), prober, logr.Discard(), Options{
		Dir:            dir,
		CommandTimeout: 5 * time.Second,
	})
	ctx := testutil.TestContext(t)

	assert.True(t, keys.VerifyKey(ctx, string(kp.PrivateKey), "deploy", srv.Host))
	assert.False(t, keys.VerifyKey(ctx, string(other.PrivateKey), "deploy", srv.Host))
	assert.False(t, keys.VerifyKey(ctx, "garbage", "deploy", srv.Host))
	assert.Equal(t, []string{"echo ok"}, srv.Commands())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files are removed")
}

func TestAssociateWithDeployment(t *testing.T) {
	t.Parallel()
	env := newStoreEnv(t, Options{})
	ctx := testutil.TestContext(t)

	rec, err := env.keys.Create(ctx, CreateRequest{Name: "deploy", Content: "-----BEGIN X-----\nYWJj\n-----END X-----"})
	require.NoError(t, err)
	require.NoError(t, env.keys.AssociateWithDeployment(ctx, rec.ID, "dep-1"))

	got, err := env.keys.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "dep-1", got.DeploymentID)

	err = env.keys.AssociateWithDeployment(ctx, "missing", "dep-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
