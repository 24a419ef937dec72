package store

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id   TEXT PRIMARY KEY,
	tier TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pipelines (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	deployment_config TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS deployments (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	instance_id TEXT NOT NULL,
	pipeline_id TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	size        TEXT NOT NULL,
	region      TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS deployments_tenant_status
	ON deployments (tenant_id, status);

CREATE TABLE IF NOT EXISTS ssh_keys (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	key_pair_name   TEXT NOT NULL,
	content         TEXT NOT NULL,
	encoded_content TEXT NOT NULL,
	deployment_id   TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS ssh_keys_pair_name
	ON ssh_keys (key_pair_name);

CREATE TABLE IF NOT EXISTS usage_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	deployment_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	at            TEXT NOT NULL
);
`
