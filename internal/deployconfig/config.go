// Package deployconfig reads and reconciles the deployment configuration
// document a pipeline carries.
//
// The document may hold the pipeline's SSH private key in three places:
// top-level "sshPrivateKey", "config.sshPrivateKey" (older writers), and
// "sshPrivateKeyBase64". After Reconcile, every location present holds
// the same key, with the top-level plaintext winning any disagreement.
// All other fields are preserved: changes are applied to the original
// document as a JSON merge patch.
package deployconfig

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/imamik/ec2keeper/internal/keys"
)

// Config is a decoded deployment configuration document.
type Config struct {
	raw []byte

	// SSHPrivateKey is the top-level plaintext key.
	SSHPrivateKey string
	// NestedSSHPrivateKey is config.sshPrivateKey.
	NestedSSHPrivateKey string
	// SSHPrivateKeyBase64 is the base64 mirror of SSHPrivateKey.
	SSHPrivateKeyBase64 string
	// KeyPairName is the cloud key pair the pipeline deploys with.
	KeyPairName string

	// nestedWritable is false when "config" holds something other than
	// an object, which is left alone.
	nestedWritable bool
	dirty          bool
}

type document struct {
	SSHPrivateKey       string          `json:"sshPrivateKey"`
	SSHPrivateKeyBase64 string          `json:"sshPrivateKeyBase64"`
	KeyPairName         string          `json:"keyPairName"`
	Config              json.RawMessage `json:"config"`
}

type nestedDocument struct {
	SSHPrivateKey string `json:"sshPrivateKey"`
}

// Parse decodes a document. Empty input is an empty object.
func Parse(data []byte) (*Config, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse deployment config: %w", err)
	}

	c := &Config{
		raw:                 data,
		SSHPrivateKey:       doc.SSHPrivateKey,
		SSHPrivateKeyBase64: doc.SSHPrivateKeyBase64,
		KeyPairName:         doc.KeyPairName,
		nestedWritable:      true,
	}

	nested := bytes.TrimSpace(doc.Config)
	if len(nested) > 0 && !bytes.Equal(nested, []byte("null")) {
		var n nestedDocument
		if nested[0] == '{' && json.Unmarshal(nested, &n) == nil {
			c.NestedSSHPrivateKey = n.SSHPrivateKey
		} else {
			c.nestedWritable = false
		}
	}
	return c, nil
}

// Bytes encodes the document. An unmodified document is returned as it
// was parsed.
func (c *Config) Bytes() ([]byte, error) {
	if !c.dirty {
		return c.raw, nil
	}

	patch := map[string]any{}
	if c.SSHPrivateKey != "" {
		patch["sshPrivateKey"] = c.SSHPrivateKey
	}
	if c.SSHPrivateKeyBase64 != "" {
		patch["sshPrivateKeyBase64"] = c.SSHPrivateKeyBase64
	}
	if c.KeyPairName != "" {
		patch["keyPairName"] = c.KeyPairName
	}
	if c.nestedWritable && c.NestedSSHPrivateKey != "" {
		patch["config"] = map[string]any{"sshPrivateKey": c.NestedSSHPrivateKey}
	}

	patchData, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deployment config patch: %w", err)
	}
	out, err := jsonpatch.MergePatch(c.raw, patchData)
	if err != nil {
		return nil, fmt.Errorf("failed to apply deployment config patch: %w", err)
	}
	return out, nil
}

// Key returns the reconciled private key, or "" when no location holds a
// well-formed key.
func (c *Config) Key() string {
	key, _ := c.source()
	return key
}

// source picks the key to propagate: top-level, then nested, then the
// decoded base64 mirror. Malformed keys are repaired first.
func (c *Config) source() (string, bool) {
	candidates := []string{c.SSHPrivateKey, c.NestedSSHPrivateKey}
	if decoded, err := base64.StdEncoding.DecodeString(c.SSHPrivateKeyBase64); err == nil {
		candidates = append(candidates, string(decoded))
	}
	for _, k := range candidates {
		fixed, ok := keys.Repair(k)
		if !ok {
			continue
		}
		if keys.IsMalformed(k) {
			return fixed, true
		}
		// Well-formed keys are kept byte for byte.
		return k, true
	}
	return "", false
}

// Reconcile makes all key locations agree. It reports whether anything
// changed. Documents without a well-formed key are left untouched.
func (c *Config) Reconcile() bool {
	key, ok := c.source()
	if !ok {
		return false
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(key))
	changed := false
	if c.SSHPrivateKey != key {
		c.SSHPrivateKey = key
		changed = true
	}
	if c.nestedWritable && c.NestedSSHPrivateKey != key {
		c.NestedSSHPrivateKey = key
		changed = true
	}
	if c.SSHPrivateKeyBase64 != encoded {
		c.SSHPrivateKeyBase64 = encoded
		changed = true
	}
	c.dirty = c.dirty || changed
	return changed
}

// SetKeyPairName records the key pair name. It reports whether the value
// changed.
func (c *Config) SetKeyPairName(name string) bool {
	if name == "" || c.KeyPairName == name {
		return false
	}
	c.KeyPairName = name
	c.dirty = true
	return true
}
