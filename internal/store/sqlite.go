package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	sqlitelib "zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/imamik/ec2keeper/internal/platform/sqlite"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// SQLiteStore implements every store interface consumed by the
// provisioner, key store, and billing tracker.
type SQLiteStore struct {
	pool *sqlite.Pool
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string, logger logr.Logger) (*SQLiteStore, error) {
	pool, err := sqlite.Open(sqlite.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlitelib.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{pool: pool, now: time.Now}, nil
}

// Close releases the connection pool.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteStore) withConn(ctx context.Context, fn func(conn *sqlitelib.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (int, error) {
	var changes int
	err := s.withConn(ctx, func(conn *sqlitelib.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return err
		}
		changes = conn.Changes()
		return nil
	})
	return changes, err
}

func (s *SQLiteStore) query(ctx context.Context, query string, row func(stmt *sqlitelib.Stmt) error, args ...any) error {
	return s.withConn(ctx, func(conn *sqlitelib.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args, ResultFunc: row})
	})
}

// SetTenantTier creates or updates a tenant.
func (s *SQLiteStore) SetTenantTier(ctx context.Context, tenantID string, tier Tier) error {
	_, err := s.exec(ctx,
		`INSERT INTO tenants (id, tier) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET tier = excluded.tier`,
		tenantID, string(tier))
	if err != nil {
		return fmt.Errorf("failed to set tier for tenant %s: %w", tenantID, err)
	}
	return nil
}

// GetTenantTier returns the tier of a tenant, or ErrNotFound.
func (s *SQLiteStore) GetTenantTier(ctx context.Context, tenantID string) (Tier, error) {
	var tier Tier
	found := false
	err := s.query(ctx, `SELECT tier FROM tenants WHERE id = ?`, func(stmt *sqlitelib.Stmt) error {
		tier = Tier(stmt.ColumnText(0))
		found = true
		return nil
	}, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}
	if !found {
		return "", fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	return tier, nil
}

// UpsertPipeline creates or replaces a pipeline row.
func (s *SQLiteStore) UpsertPipeline(ctx context.Context, p Pipeline) error {
	blob := p.DeploymentConfig
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	_, err := s.exec(ctx,
		`INSERT INTO pipelines (id, tenant_id, deployment_config) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET tenant_id = excluded.tenant_id,
		   deployment_config = excluded.deployment_config`,
		p.ID, p.TenantID, string(blob))
	if err != nil {
		return fmt.Errorf("failed to save pipeline %s: %w", p.ID, err)
	}
	return nil
}

// GetDeploymentConfig returns the raw deployment config blob of a pipeline.
func (s *SQLiteStore) GetDeploymentConfig(ctx context.Context, pipelineID string) ([]byte, error) {
	var blob []byte
	found := false
	err := s.query(ctx, `SELECT deployment_config FROM pipelines WHERE id = ?`, func(stmt *sqlitelib.Stmt) error {
		blob = []byte(stmt.ColumnText(0))
		found = true
		return nil
	}, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline %s: %w", pipelineID, err)
	}
	if !found {
		return nil, fmt.Errorf("pipeline %s: %w", pipelineID, ErrNotFound)
	}
	return blob, nil
}

// SaveDeploymentConfig overwrites the deployment config blob of a pipeline.
func (s *SQLiteStore) SaveDeploymentConfig(ctx context.Context, pipelineID string, blob []byte) error {
	n, err := s.exec(ctx, `UPDATE pipelines SET deployment_config = ? WHERE id = ?`, string(blob), pipelineID)
	if err != nil {
		return fmt.Errorf("failed to save deployment config of pipeline %s: %w", pipelineID, err)
	}
	if n == 0 {
		return fmt.Errorf("pipeline %s: %w", pipelineID, ErrNotFound)
	}
	return nil
}

const deploymentColumns = `id, tenant_id, instance_id, pipeline_id, status, size, region, metadata, created_at, updated_at`

func scanDeployment(stmt *sqlitelib.Stmt) (Deployment, error) {
	d := Deployment{
		ID:         stmt.GetText("id"),
		TenantID:   stmt.GetText("tenant_id"),
		InstanceID: stmt.GetText("instance_id"),
		PipelineID: stmt.GetText("pipeline_id"),
		Status:     DeploymentStatus(stmt.GetText("status")),
		Size:       stmt.GetText("size"),
		Region:     stmt.GetText("region"),
		Metadata:   map[string]string{},
	}
	if raw := stmt.GetText("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &d.Metadata); err != nil {
			return d, fmt.Errorf("deployment %s has corrupt metadata: %w", d.ID, err)
		}
	}
	d.CreatedAt = parseTime(stmt.GetText("created_at"))
	d.UpdatedAt = parseTime(stmt.GetText("updated_at"))
	return d, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// CreateDeployment inserts d, assigning an ID and timestamps when unset.
func (s *SQLiteStore) CreateDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
	now := s.now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	meta, err := encodeMetadata(d.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata of deployment %s: %w", d.ID, err)
	}

	_, err = s.exec(ctx,
		`INSERT INTO deployments (`+deploymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.InstanceID, d.PipelineID, string(d.Status), d.Size, d.Region, meta,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create deployment for instance %s: %w", d.InstanceID, err)
	}
	return nil
}

// GetDeployment loads a deployment by id, or ErrNotFound.
func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	found, err := s.findDeployments(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment %s: %w", id, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("deployment %s: %w", id, ErrNotFound)
	}
	return &found[0], nil
}

// FindActiveDeployment returns the newest active deployment of a tenant's
// pipeline, or ErrNotFound.
func (s *SQLiteStore) FindActiveDeployment(ctx context.Context, tenantID, pipelineID string) (*Deployment, error) {
	found, err := s.findDeployments(ctx,
		`SELECT `+deploymentColumns+` FROM deployments
		 WHERE tenant_id = ? AND pipeline_id = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, pipelineID, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to look up active deployment of pipeline %s: %w", pipelineID, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("active deployment of pipeline %s: %w", pipelineID, ErrNotFound)
	}
	return &found[0], nil
}

// ListDeployments returns a tenant's deployments, newest first. An empty
// tenantID lists all tenants.
func (s *SQLiteStore) ListDeployments(ctx context.Context, tenantID string) ([]Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE (? = '' OR tenant_id = ?) ORDER BY created_at DESC`
	found, err := s.findDeployments(ctx, query, tenantID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	return found, nil
}

func (s *SQLiteStore) findDeployments(ctx context.Context, query string, args ...any) ([]Deployment, error) {
	var out []Deployment
	err := s.query(ctx, query, func(stmt *sqlitelib.Stmt) error {
		d, err := scanDeployment(stmt)
		if err != nil {
			return err
		}
		out = append(out, d)
		return nil
	}, args...)
	return out, err
}

// CountActiveDeployments counts a tenant's active deployments.
func (s *SQLiteStore) CountActiveDeployments(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.query(ctx, `SELECT COUNT(*) FROM deployments WHERE tenant_id = ? AND status = ?`,
		func(stmt *sqlitelib.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		}, tenantID, string(StatusActive))
	if err != nil {
		return 0, fmt.Errorf("failed to count active deployments of tenant %s: %w", tenantID, err)
	}
	return count, nil
}

// UpdateDeployment overwrites status and metadata of an existing record.
func (s *SQLiteStore) UpdateDeployment(ctx context.Context, d *Deployment) error {
	meta, err := encodeMetadata(d.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata of deployment %s: %w", d.ID, err)
	}
	d.UpdatedAt = s.now().UTC()

	n, err := s.exec(ctx,
		`UPDATE deployments SET status = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		string(d.Status), meta, formatTime(d.UpdatedAt), d.ID)
	if err != nil {
		return fmt.Errorf("failed to update deployment %s: %w", d.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("deployment %s: %w", d.ID, ErrNotFound)
	}
	return nil
}

const keyColumns = `id, name, key_pair_name, content, encoded_content, deployment_id, created_at`

func scanKey(stmt *sqlitelib.Stmt) SSHKey {
	k := SSHKey{
		ID:             stmt.GetText("id"),
		Name:           stmt.GetText("name"),
		KeyPairName:    stmt.GetText("key_pair_name"),
		Content:        stmt.GetText("content"),
		EncodedContent: stmt.GetText("encoded_content"),
		DeploymentID:   stmt.GetText("deployment_id"),
	}
	k.CreatedAt = parseTime(stmt.GetText("created_at"))
	return k
}

// CreateKey inserts a key record, assigning an ID when unset.
func (s *SQLiteStore) CreateKey(ctx context.Context, k *SSHKey) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = s.now().UTC()
	}
	_, err := s.exec(ctx,
		`INSERT INTO ssh_keys (`+keyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Name, k.KeyPairName, k.Content, k.EncodedContent, k.DeploymentID, formatTime(k.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create key record %s: %w", k.Name, err)
	}
	return nil
}

// GetKey loads a key record by id, or ErrNotFound.
func (s *SQLiteStore) GetKey(ctx context.Context, id string) (*SSHKey, error) {
	found, err := s.findKeys(ctx, `SELECT `+keyColumns+` FROM ssh_keys WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", id, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("key %s: %w", id, ErrNotFound)
	}
	return &found[0], nil
}

// GetKeyByPairName returns the oldest record with the given key pair name.
// Pair names are not unique in storage.
func (s *SQLiteStore) GetKeyByPairName(ctx context.Context, pairName string) (*SSHKey, error) {
	found, err := s.findKeys(ctx,
		`SELECT `+keyColumns+` FROM ssh_keys WHERE key_pair_name = ? ORDER BY created_at ASC, rowid ASC LIMIT 1`,
		pairName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up key pair %s: %w", pairName, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("key pair %s: %w", pairName, ErrNotFound)
	}
	return &found[0], nil
}

// ListKeys returns all key records, oldest first.
func (s *SQLiteStore) ListKeys(ctx context.Context) ([]SSHKey, error) {
	found, err := s.findKeys(ctx, `SELECT `+keyColumns+` FROM ssh_keys ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return found, nil
}

func (s *SQLiteStore) findKeys(ctx context.Context, query string, args ...any) ([]SSHKey, error) {
	var out []SSHKey
	err := s.query(ctx, query, func(stmt *sqlitelib.Stmt) error {
		out = append(out, scanKey(stmt))
		return nil
	}, args...)
	return out, err
}

// AssociateKey links a key record to a deployment.
func (s *SQLiteStore) AssociateKey(ctx context.Context, keyID, deploymentID string) error {
	n, err := s.exec(ctx, `UPDATE ssh_keys SET deployment_id = ? WHERE id = ?`, deploymentID, keyID)
	if err != nil {
		return fmt.Errorf("failed to associate key %s with deployment %s: %w", keyID, deploymentID, err)
	}
	if n == 0 {
		return fmt.Errorf("key %s: %w", keyID, ErrNotFound)
	}
	return nil
}

// RecordUsage appends a usage event.
func (s *SQLiteStore) RecordUsage(ctx context.Context, deploymentID string, kind UsageKind, at time.Time) error {
	_, err := s.exec(ctx, `INSERT INTO usage_events (deployment_id, kind, at) VALUES (?, ?, ?)`,
		deploymentID, string(kind), formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to record %s usage for deployment %s: %w", kind, deploymentID, err)
	}
	return nil
}

// ListUsage returns the usage events of a deployment in insertion order.
func (s *SQLiteStore) ListUsage(ctx context.Context, deploymentID string) ([]UsageEvent, error) {
	var out []UsageEvent
	err := s.query(ctx, `SELECT id, deployment_id, kind, at FROM usage_events WHERE deployment_id = ? ORDER BY id ASC`,
		func(stmt *sqlitelib.Stmt) error {
			at := parseTime(stmt.GetText("at"))
			out = append(out, UsageEvent{
				ID:           stmt.GetInt64("id"),
				DeploymentID: stmt.GetText("deployment_id"),
				Kind:         UsageKind(stmt.GetText("kind")),
				At:           at,
			})
			return nil
		}, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage of deployment %s: %w", deploymentID, err)
	}
	return out, nil
}
