package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// OfflineRecord is one locally registered identity.
type OfflineRecord struct {
	UserID       string `json:"user_id"`
	PasswordHash string `json:"password_hash"`
	DailyLimit   int64  `json:"daily_limit"`
	CreatedAt    int64  `json:"created_at"`
}

// OfflineStore is the local identity/secret-hash store used when the
// remote auth endpoints are unreachable. Stored as a JSON map from
// identity to record, with the same atomic-write discipline as the
// credential store.
type OfflineStore struct {
	path string
}

// defaultOfflineDailyLimit is granted to offline registrations.
const defaultOfflineDailyLimit = 25000

// NewOfflineStore creates a store rooted at dir (dir/offline_users.json).
func NewOfflineStore(dir string) *OfflineStore {
	return &OfflineStore{path: filepath.Join(dir, "offline_users.json")}
}

func (st *OfflineStore) load() (map[string]OfflineRecord, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]OfflineRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read offline store: %w", err)
	}
	users := map[string]OfflineRecord{}
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("corrupt offline store: %w", err)
	}
	return users, nil
}

func (st *OfflineStore) save(users map[string]OfflineRecord) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal offline store: %w", err)
	}

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "offline-*.tmp")
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
		return fmt.Errorf("failed to write offline store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(tmpName, st.path)
}

// Register adds a local identity. Fails with ErrAlreadyRegistered if the
// identity exists.
func (st *OfflineStore) Register(identity, secret string) (*OfflineRecord, error) {
	users, err := st.load()
	if err != nil {
		return nil, err
	}
	if _, exists := users[identity]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, identity)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	rec := OfflineRecord{
		UserID:       uuid.NewString(),
		PasswordHash: string(hash),
		DailyLimit:   defaultOfflineDailyLimit,
		CreatedAt:    time.Now().Unix(),
	}
	users[identity] = rec

	if err := st.save(users); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Verify checks an identity/secret pair against the local store. Returns
// ErrInvalidCredentials when the identity is unknown or the secret does
// not match.
func (st *OfflineStore) Verify(identity, secret string) (*OfflineRecord, error) {
	users, err := st.load()
	if err != nil {
		return nil, err
	}
	rec, ok := users[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, identity)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(secret)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, identity)
	}
	return &rec, nil
}

// Has reports whether an identity exists locally.
func (st *OfflineStore) Has(identity string) (bool, error) {
	users, err := st.load()
	if err != nil {
		return false, err
	}
	_, ok := users[identity]
	return ok, nil
}
