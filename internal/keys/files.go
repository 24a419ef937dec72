package keys

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SystemKeyDir is the last filesystem location searched for keys.
const SystemKeyDir = "/etc/ec2keeper/keys"

// CandidatePaths returns the locations searched for a key pair's private
// key, in order: ~/.ssh/<name>, ~/.ssh/<name>.pem, ./<name>.pem, and
// /etc/ec2keeper/keys/<name>.pem. Locations whose base directory cannot
// be determined are skipped.
func CandidatePaths(name string) []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths,
			filepath.Join(home, ".ssh", name),
			filepath.Join(home, ".ssh", name+".pem"),
		)
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, name+".pem"))
	}
	return append(paths, filepath.Join(SystemKeyDir, name+".pem"))
}

// validatePairName rejects names that would escape the cache directory.
func validatePairName(name string) error {
	if name == "" {
		return fmt.Errorf("key pair name is empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid key pair name %q", name)
	}
	return nil
}

// ensureDir creates dir with owner-only permissions, tightening an
// existing directory.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", dir, err)
	}
	return nil
}

// readKeyFile returns the file content when it looks like PEM key material.
func readKeyFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	content := string(data)
	if !pemHeader.MatchString(content) {
		return "", false
	}
	return content, true
}
