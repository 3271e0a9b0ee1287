// Package auth manages the authenticated session for one cite-agent
// installation: login/registration with an offline fallback, durable
// credential storage, and token refresh.
//
// At most one session is active per installation. The session is mutated
// only through the Manager and survives process restarts via the
// CredentialStore.
package auth

import (
	"encoding/json"
	"time"
)

// Session is the authenticated identity + token bundle authorizing
// backend calls. Server field names are normalized into this schema once,
// at the login/refresh boundary; nothing else branches on provider names.
type Session struct {
	Email           string
	AuthToken       string
	AccountID       string
	DailyTokenLimit int64
	ExpiresAt       time.Time

	// Short-lived provider key for the direct function-calling path.
	TempAPIKey      string
	TempKeyExpires  time.Time
	TempKeyProvider string

	// OfflineMode marks sessions created against the local store.
	OfflineMode bool
}

// Timestamps are persisted as unix seconds, matching the wire format of
// the auth endpoints.
type sessionJSON struct {
	Email           string `json:"email"`
	AuthToken       string `json:"auth_token"`
	AccountID       string `json:"account_id"`
	DailyTokenLimit int64  `json:"daily_token_limit"`
	ExpiresAt       int64  `json:"expires_at"`
	TempAPIKey      string `json:"temp_api_key,omitempty"`
	TempKeyExpires  int64  `json:"temp_key_expires,omitempty"`
	TempKeyProvider string `json:"temp_key_provider,omitempty"`
	OfflineMode     bool   `json:"offline_mode,omitempty"`
}

func (s *Session) MarshalJSON() ([]byte, error) {
	aux := sessionJSON{
		Email:           s.Email,
		AuthToken:       s.AuthToken,
		AccountID:       s.AccountID,
		DailyTokenLimit: s.DailyTokenLimit,
		ExpiresAt:       s.ExpiresAt.Unix(),
		TempAPIKey:      s.TempAPIKey,
		TempKeyProvider: s.TempKeyProvider,
		OfflineMode:     s.OfflineMode,
	}
	if !s.TempKeyExpires.IsZero() {
		aux.TempKeyExpires = s.TempKeyExpires.Unix()
	}
	return json.Marshal(aux)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var aux sessionJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Session{
		Email:           aux.Email,
		AuthToken:       aux.AuthToken,
		AccountID:       aux.AccountID,
		DailyTokenLimit: aux.DailyTokenLimit,
		ExpiresAt:       time.Unix(aux.ExpiresAt, 0),
		TempAPIKey:      aux.TempAPIKey,
		TempKeyProvider: aux.TempKeyProvider,
		OfflineMode:     aux.OfflineMode,
	}
	if aux.TempKeyExpires > 0 {
		s.TempKeyExpires = time.Unix(aux.TempKeyExpires, 0)
	}
	return nil
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// HasTempKey reports whether a still-valid provider key is attached.
func (s *Session) HasTempKey() bool {
	return s.TempAPIKey != "" && time.Now().Before(s.TempKeyExpires)
}
