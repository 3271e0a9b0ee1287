package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/backend"
	"github.com/Spectating101/cite-agent-sub002/internal/logging"
)

// Manager owns the session lifecycle: online-first authentication with a
// bounded offline fallback, durable persistence, expiry detection, and
// best-effort refresh.
type Manager struct {
	client  *backend.Client
	creds   *CredentialStore
	offline *OfflineStore

	// loginRetrier bounds how hard login tries the network before the
	// offline fallback. Kept short so a dead backend does not stall the
	// CLI, but longer than one attempt so a single DNS hiccup does not
	// silently flip the user into offline mode.
	loginRetrier *backend.Retrier

	defaultTTL time.Duration

	// dailyOverride, when > 0, replaces the server-assigned daily token
	// limit (CITEAGENT_DAILY_LIMIT).
	dailyOverride int64

	log *zap.Logger
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	CredentialsDir string
	DefaultTTL     time.Duration
	DailyOverride  int64
	LoginSchedule  []time.Duration
}

// NewManager creates a session manager storing credentials under
// opts.CredentialsDir.
func NewManager(client *backend.Client, opts ManagerOptions) *Manager {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	schedule := opts.LoginSchedule
	if len(schedule) == 0 {
		schedule = []time.Duration{2 * time.Second}
	}
	return &Manager{
		client:        client,
		creds:         NewCredentialStore(opts.CredentialsDir),
		offline:       NewOfflineStore(opts.CredentialsDir),
		loginRetrier:  backend.NewRetrier(schedule),
		defaultTTL:    ttl,
		dailyOverride: opts.DailyOverride,
		log:           logging.Auth(),
	}
}

// Login authenticates online first; on a transport failure (never on an
// explicit rejection) it validates against the local offline store. The
// resulting session is persisted with owner-only permissions.
func (m *Manager) Login(ctx context.Context, email, secret string) (*Session, error) {
	var payload *backend.AuthPayload
	err := m.loginRetrier.Call(ctx, func(ctx context.Context) error {
		p, err := m.client.Login(ctx, email, secret)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})

	switch {
	case err == nil:
		session := m.normalize(payload, email, false)
		if err := m.creds.Save(session); err != nil {
			return nil, err
		}
		m.log.Info("logged in", zap.String("email", email))
		return session, nil

	case !backend.Transport(err):
		// The backend answered and said no.
		m.log.Warn("login rejected", zap.String("email", email))
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, email)

	default:
		m.log.Info("backend unreachable, trying offline store",
			zap.String("email", email))
		return m.offlineLogin(email, secret)
	}
}

func (m *Manager) offlineLogin(email, secret string) (*Session, error) {
	rec, err := m.offline.Verify(email, secret)
	if err != nil {
		return nil, err
	}
	session := &Session{
		Email:           email,
		AuthToken:       "offline",
		AccountID:       rec.UserID,
		DailyTokenLimit: m.effectiveLimit(rec.DailyLimit),
		ExpiresAt:       time.Now().Add(m.defaultTTL),
		OfflineMode:     true,
	}
	if err := m.creds.Save(session); err != nil {
		return nil, err
	}
	m.log.Info("logged in offline", zap.String("email", email))
	return session, nil
}

// Register creates an account, online first with the same offline
// fallback structure as Login.
func (m *Manager) Register(ctx context.Context, email, secret string) (*Session, error) {
	// A known local identity is a conflict regardless of reachability.
	if exists, err := m.offline.Has(email); err == nil && exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, email)
	}

	var payload *backend.AuthPayload
	err := m.loginRetrier.Call(ctx, func(ctx context.Context) error {
		p, err := m.client.Register(ctx, email, secret)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})

	switch {
	case err == nil:
		session := m.normalize(payload, email, false)
		if err := m.creds.Save(session); err != nil {
			return nil, err
		}
		m.log.Info("registered", zap.String("email", email))
		return session, nil

	case !backend.Transport(err):
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, email)

	default:
		rec, err := m.offline.Register(email, secret)
		if err != nil {
			return nil, err
		}
		session := &Session{
			Email:           email,
			AuthToken:       "offline",
			AccountID:       rec.UserID,
			DailyTokenLimit: m.effectiveLimit(rec.DailyLimit),
			ExpiresAt:       time.Now().Add(m.defaultTTL),
			OfflineMode:     true,
		}
		if err := m.creds.Save(session); err != nil {
			return nil, err
		}
		m.log.Info("registered offline", zap.String("email", email))
		return session, nil
	}
}

// GetSession loads the persisted session without touching the network.
// An expired session is deleted on sight and nil is returned.
func (m *Manager) GetSession() (*Session, error) {
	session, err := m.creds.Load()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	if session.IsExpired() {
		m.log.Info("session expired, discarding",
			zap.Time("expired_at", session.ExpiresAt))
		if err := m.creds.Delete(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return session, nil
}

// Refresh exchanges the current token for a new one. Returns false when
// the network call does not succeed; the old session stays intact until
// it naturally expires.
func (m *Manager) Refresh(ctx context.Context) bool {
	session, err := m.GetSession()
	if err != nil || session == nil || session.OfflineMode {
		return false
	}

	payload, err := m.client.Refresh(ctx, session.AuthToken)
	if err != nil {
		m.log.Debug("refresh failed, keeping current session", zap.Error(err))
		return false
	}

	refreshed := m.normalize(payload, session.Email, false)
	// Keep identity fields the server may omit on refresh.
	if refreshed.Email == "" {
		refreshed.Email = session.Email
	}
	if refreshed.AccountID == "" {
		refreshed.AccountID = session.AccountID
	}
	if err := m.creds.Save(refreshed); err != nil {
		m.log.Warn("failed to persist refreshed session", zap.Error(err))
		return false
	}
	m.log.Info("session refreshed", zap.Time("expires_at", refreshed.ExpiresAt))
	return true
}

// Logout destroys the persisted session.
func (m *Manager) Logout() error {
	return m.creds.Delete()
}

// normalize maps server field names to the internal schema, applies the
// default lifetime when the server omits expiry, and applies the daily
// limit override.
func (m *Manager) normalize(p *backend.AuthPayload, fallbackEmail string, offline bool) *Session {
	email := p.Email
	if email == "" {
		email = fallbackEmail
	}

	expires := time.Now().Add(m.defaultTTL)
	if p.ExpiresAt > 0 {
		expires = time.Unix(p.ExpiresAt, 0)
	}

	s := &Session{
		Email:           email,
		AuthToken:       p.AccessToken,
		AccountID:       p.UserID,
		DailyTokenLimit: m.effectiveLimit(p.DailyTokenLimit),
		ExpiresAt:       expires,
		TempAPIKey:      p.TempAPIKey,
		TempKeyProvider: p.TempKeyProvider,
		OfflineMode:     offline,
	}
	if p.TempKeyExpires > 0 {
		s.TempKeyExpires = time.Unix(p.TempKeyExpires, 0)
	}
	return s
}

func (m *Manager) effectiveLimit(serverLimit int64) int64 {
	if m.dailyOverride > 0 {
		return m.dailyOverride
	}
	return serverLimit
}
