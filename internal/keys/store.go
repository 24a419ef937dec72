package keys

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/ec2keeper/internal/platform/ec2"
	"github.com/imamik/ec2keeper/internal/store"
	"github.com/imamik/ec2keeper/internal/util/keygen"
	"github.com/imamik/ec2keeper/internal/util/retry"
)

var (
	// ErrKeyMaterialMissing is returned by Create when neither key content
	// nor cloud credentials are supplied.
	ErrKeyMaterialMissing = errors.New("key material missing")

	// ErrKeyNotFound is returned when no private key can be located for an
	// instance.
	ErrKeyNotFound = errors.New("key not found")
)

const (
	defaultSSHUser        = "ubuntu"
	defaultCommandTimeout = 10 * time.Second
	verifyCommand         = "echo ok"
)

// Records is the durable storage used by Store.
type Records interface {
	CreateKey(ctx context.Context, k *store.SSHKey) error
	GetKey(ctx context.Context, id string) (*store.SSHKey, error)
	GetKeyByPairName(ctx context.Context, pairName string) (*store.SSHKey, error)
	ListKeys(ctx context.Context) ([]store.SSHKey, error)
	AssociateKey(ctx context.Context, keyID, deploymentID string) error
}

// Archive keeps a secondary copy of key material.
type Archive interface {
	PutKey(ctx context.Context, keyPairName, content string) error
	GetKey(ctx context.Context, keyPairName string) (string, error)
}

// CommandRunner executes one command over SSH.
type CommandRunner interface {
	RunRemoteCommand(ctx context.Context, host, user, keyPath, command string, timeout time.Duration) (string, error)
}

// Options configures a Store. Zero values select defaults.
type Options struct {
	// Dir is the local key cache directory.
	Dir string
	// SSHUser is the login used by VerifyKey. Defaults to "ubuntu".
	SSHUser string
	// CommandTimeout bounds VerifyKey's connection setup.
	CommandTimeout time.Duration
	// Archive is optional.
	Archive Archive
	// SearchPaths overrides CandidatePaths.
	SearchPaths func(name string) []string
}

// CreateRequest describes a key to store. Content takes precedence over
// minting a new key pair with Credentials.
type CreateRequest struct {
	Name        string
	Content     string
	KeyPairName string
	Region      string
	Credentials *ec2.Credentials
}

// Store manages SSH key records and their local copies.
type Store struct {
	records   Records
	connector ec2.Connector
	runner    CommandRunner
	archive   Archive
	logger    logr.Logger

	dir         string
	sshUser     string
	timeout     time.Duration
	searchPaths func(name string) []string
}

// NewStore creates a key store.
func NewStore(records Records, connector ec2.Connector, runner CommandRunner, logger logr.Logger, opts Options) *Store {
	s := &Store{
		records:     records,
		connector:   connector,
		runner:      runner,
		archive:     opts.Archive,
		logger:      logger.WithName("keys"),
		dir:         opts.Dir,
		sshUser:     opts.SSHUser,
		timeout:     opts.CommandTimeout,
		searchPaths: opts.SearchPaths,
	}
	if s.sshUser == "" {
		s.sshUser = defaultSSHUser
	}
	if s.timeout <= 0 {
		s.timeout = defaultCommandTimeout
	}
	if s.searchPaths == nil {
		s.searchPaths = CandidatePaths
	}
	return s
}

// Create stores a key. Without Content it mints a key pair in the cloud
// using Credentials. The key is written to the local cache and both
// plaintext and base64 forms are persisted.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*store.SSHKey, error) {
	return s.create(ctx, req, true)
}

func (s *Store) create(ctx context.Context, req CreateRequest, archive bool) (*store.SSHKey, error) {
	pairName := req.KeyPairName
	if pairName == "" {
		pairName = req.Name
	}
	if err := validatePairName(pairName); err != nil {
		return nil, err
	}

	content := req.Content
	switch {
	case content != "":
		content = Normalize(content)
	case req.Credentials != nil:
		api, err := s.connector.Connect(ctx, req.Region, *req.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to region %s: %w", req.Region, err)
		}
		kp, err := api.CreateKeyPair(ctx, pairName)
		if err != nil {
			return nil, err
		}
		if kp.Material == "" {
			return nil, fmt.Errorf("%w: cloud returned no material for %s", ErrKeyMaterialMissing, pairName)
		}
		content = kp.Material
		if kp.Name != "" {
			pairName = kp.Name
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrKeyMaterialMissing, pairName)
	}

	if _, err := s.WriteToFile(pairName, content); err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = pairName
	}
	rec := &store.SSHKey{
		Name:           name,
		KeyPairName:    pairName,
		Content:        content,
		EncodedContent: base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if err := s.records.CreateKey(ctx, rec); err != nil {
		return nil, err
	}

	fingerprint, _ := keygen.Fingerprint([]byte(content))
	s.logger.Info("stored key", "keyPair", pairName, "id", rec.ID, "fingerprint", fingerprint)

	if archive {
		s.archiveKey(ctx, pairName, content)
	}
	return rec, nil
}

// archiveKey copies a key to the archive. Failures are logged only.
func (s *Store) archiveKey(ctx context.Context, pairName, content string) {
	if s.archive == nil {
		return
	}
	err := retry.WithExponentialBackoff(ctx, func() error {
		return s.archive.PutKey(ctx, pairName, content)
	}, retry.WithMaxRetries(2), retry.WithInitialDelay(200*time.Millisecond))
	if err != nil {
		s.logger.Error(err, "failed to archive key", "keyPair", pairName)
	}
}

// Get loads a key record by id.
func (s *Store) Get(ctx context.Context, id string) (*store.SSHKey, error) {
	return s.records.GetKey(ctx, id)
}

// List returns all key records.
func (s *Store) List(ctx context.Context) ([]store.SSHKey, error) {
	return s.records.ListKeys(ctx)
}

// GetByPairName returns the first record for a key pair name, or an error
// matching store.ErrNotFound.
func (s *Store) GetByPairName(ctx context.Context, pairName string) (*store.SSHKey, error) {
	return s.records.GetKeyByPairName(ctx, pairName)
}

// keySource says where locate found a key.
type keySource int

const (
	fromStore keySource = iota
	fromArchive
	fromDisk
)

// GetForInstance finds the private key for the key pair attached to an
// instance. It searches the store, then the archive, then CandidatePaths;
// a key found outside the store is ingested before it is returned.
func (s *Store) GetForInstance(ctx context.Context, instanceID, region string, creds ec2.Credentials) (*store.SSHKey, error) {
	rec, src, err := s.locate(ctx, instanceID, region, creds)
	if err != nil {
		return nil, err
	}
	switch src {
	case fromArchive:
		return s.create(ctx, CreateRequest{Name: rec.Name, KeyPairName: rec.KeyPairName, Content: rec.Content}, false)
	case fromDisk:
		return s.Create(ctx, CreateRequest{Name: rec.Name, KeyPairName: rec.KeyPairName, Content: rec.Content})
	}
	return rec, nil
}

// LookupForInstance searches the same places as GetForInstance but writes
// nothing. Keys found outside the store come back as unsaved records with
// an empty ID.
func (s *Store) LookupForInstance(ctx context.Context, instanceID, region string, creds ec2.Credentials) (*store.SSHKey, error) {
	rec, _, err := s.locate(ctx, instanceID, region, creds)
	return rec, err
}

func (s *Store) locate(ctx context.Context, instanceID, region string, creds ec2.Credentials) (*store.SSHKey, keySource, error) {
	api, err := s.connector.Connect(ctx, region, creds)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to region %s: %w", region, err)
	}
	inst, err := api.DescribeInstance(ctx, instanceID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to resolve key pair for instance %s: %w", instanceID, err)
	}
	pairName := inst.KeyPairName
	if pairName == "" {
		return nil, 0, fmt.Errorf("%w: instance %s has no key pair", ErrKeyNotFound, instanceID)
	}

	rec, err := s.records.GetKeyByPairName(ctx, pairName)
	if err == nil {
		return rec, fromStore, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, 0, err
	}

	if s.archive != nil {
		content, err := s.archive.GetKey(ctx, pairName)
		if err == nil {
			s.logger.Info("found key in archive", "keyPair", pairName)
			return unsaved(pairName, content), fromArchive, nil
		}
		s.logger.V(1).Info("key not in archive", "keyPair", pairName, "error", err.Error())
	}

	for _, path := range s.searchPaths(pairName) {
		content, ok := readKeyFile(path)
		if !ok {
			continue
		}
		s.logger.Info("found key on disk", "keyPair", pairName, "path", path)
		return unsaved(pairName, content), fromDisk, nil
	}

	return nil, 0, fmt.Errorf("%w: key pair %s for instance %s", ErrKeyNotFound, pairName, instanceID)
}

func unsaved(pairName, content string) *store.SSHKey {
	content = Normalize(content)
	return &store.SSHKey{
		Name:           pairName,
		KeyPairName:    pairName,
		Content:        content,
		EncodedContent: base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

// WriteToFile writes content to <dir>/<pairName>.pem with mode 0600 and
// returns the path. Existing files are overwritten and re-chmodded.
func (s *Store) WriteToFile(pairName, content string) (string, error) {
	if err := validatePairName(pairName); err != nil {
		return "", err
	}
	if err := ensureDir(s.dir); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, pairName+".pem")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("failed to write key file %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return path, nil
}

// VerifyKey reports whether content logs in to host as the admin user.
// It never returns an error; failures are logged and reported as false.
func (s *Store) VerifyKey(ctx context.Context, content, pairName, host string) bool {
	log := s.logger.WithValues("keyPair", pairName, "host", host)

	path, cleanup, err := s.scratchFile(pairName, content)
	if err != nil {
		log.Error(err, "failed to write scratch key")
		return false
	}
	defer cleanup()

	out, err := s.runner.RunRemoteCommand(ctx, host, s.sshUser, path, verifyCommand, s.timeout)
	if err != nil {
		log.Info("key verification failed", "error", err.Error())
		return false
	}
	if strings.TrimSpace(out) != "ok" {
		log.Info("key verification returned unexpected output", "output", strings.TrimSpace(out))
		return false
	}
	log.V(1).Info("key verified")
	return true
}

// scratchFile writes content to a private temporary file in the cache
// directory.
func (s *Store) scratchFile(pairName, content string) (string, func(), error) {
	if err := ensureDir(s.dir); err != nil {
		return "", nil, err
	}
	pattern := "verify-*.pem"
	if validatePairName(pairName) == nil {
		pattern = pairName + "-verify-*.pem"
	}
	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to set permissions on %s: %w", f.Name(), err)
	}
	if _, err := f.WriteString(Normalize(content)); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close %s: %w", f.Name(), err)
	}
	return f.Name(), cleanup, nil
}

// AssociateWithDeployment links a key record to a deployment. Errors are
// returned to the caller.
func (s *Store) AssociateWithDeployment(ctx context.Context, keyID, deploymentID string) error {
	if err := s.records.AssociateKey(ctx, keyID, deploymentID); err != nil {
		return fmt.Errorf("failed to associate key %s with deployment %s: %w", keyID, deploymentID, err)
	}
	return nil
}
