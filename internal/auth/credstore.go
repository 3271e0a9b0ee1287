package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CredentialStore persists the Session to a local file with owner-only
// permissions. Writes are atomic (write-to-temp-then-rename). Concurrent
// processes on the same machine get no mutual exclusion beyond filesystem
// rename atomicity; that is a documented limitation, not a bug to fix
// with a lock manager.
type CredentialStore struct {
	path string
}

// NewCredentialStore creates a store rooted at dir. The session file is
// dir/session.json.
func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{path: filepath.Join(dir, "session.json")}
}

// Path returns the session file location.
func (cs *CredentialStore) Path() string { return cs.path }

// Load reads the persisted session. Returns ErrNoSession when the file
// does not exist.
func (cs *CredentialStore) Load() (*Session, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session file: %w", err)
	}
	return &s, nil
}

// Save writes the session atomically with mode 0600.
func (cs *CredentialStore) Save(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	dir := filepath.Dir(cs.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, cs.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Delete removes the persisted session. Missing file is not an error.
func (cs *CredentialStore) Delete() error {
	if err := os.Remove(cs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}
