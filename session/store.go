package session

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/MuhibNayem/quantify-go/internal/keystore"
	"github.com/MuhibNayem/quantify-go/pkg/observe"
)

// Durable storage keys. The four credential-ish keys must be present together
// or the stored session is treated as absent.
const (
	keyAccessToken  = "accessToken"
	keyRefreshToken = "refreshToken"
	keyCSRFToken    = "csrfToken"
	keyUser         = "user"
	keyPermissions  = "permissions"
)

// ErrIncompleteCredentials is returned by Login when any credential or the
// user identity is missing.
var ErrIncompleteCredentials = errors.New("session: incomplete credentials")

// Store owns the Session entity. Mutations are atomic: subscribers observe
// either the previous or the new full Session, never a partial write.
type Store struct {
	storage keystore.Store
	logger  *slog.Logger
	obs     *observe.Observable[Session]
}

// NewStore creates a Store over the given durable storage. It does not read
// storage; call Load to hydrate.
func NewStore(storage keystore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: storage,
		logger:  logger,
		obs:     observe.New(Session{}),
	}
}

// Load reconstructs the Session from durable storage. It fails soft: a
// missing key, unreadable storage, or malformed serialized user yields an
// empty unauthenticated Session and clears storage so no partially-corrupt
// state survives.
func (s *Store) Load() Session {
	access, okA := s.read(keyAccessToken)
	refresh, okR := s.read(keyRefreshToken)
	csrf, okC := s.read(keyCSRFToken)
	rawUser, okU := s.read(keyUser)

	if !okA || !okR || !okC || !okU {
		s.clearStorage()
		s.obs.Set(Session{})
		return s.Current()
	}

	var user User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		s.logger.Warn("stored user is malformed, discarding session", "error", err)
		s.clearStorage()
		s.obs.Set(Session{})
		return s.Current()
	}

	var perms []string
	if rawPerms, ok := s.read(keyPermissions); ok {
		if err := json.Unmarshal([]byte(rawPerms), &perms); err != nil {
			s.logger.Warn("stored permissions are malformed, discarding session", "error", err)
			s.clearStorage()
			s.obs.Set(Session{})
			return s.Current()
		}
	}

	s.obs.Set(newSession(access, refresh, csrf, &user, perms))
	return s.Current()
}

// Login validates the credentials, persists them, replaces the in-memory
// Session, and notifies subscribers. Nothing is mutated when validation or
// persistence fails.
func (s *Store) Login(access, refresh, csrf string, user User, perms []string) error {
	if access == "" || refresh == "" || csrf == "" || user.ID == 0 {
		return ErrIncompleteCredentials
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return err
	}
	effective := effectivePermissions(perms, &user)
	permsJSON, err := json.Marshal(effective)
	if err != nil {
		return err
	}

	for _, kv := range [][2]string{
		{keyAccessToken, access},
		{keyRefreshToken, refresh},
		{keyCSRFToken, csrf},
		{keyUser, string(userJSON)},
		{keyPermissions, string(permsJSON)},
	} {
		if err := s.storage.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}

	s.obs.Set(newSession(access, refresh, csrf, &user, effective))
	return nil
}

// Logout removes all durable keys, resets the Session to empty, and notifies
// subscribers.
func (s *Store) Logout() {
	s.clearStorage()
	s.obs.Set(Session{})
}

// Current returns the in-memory Session.
func (s *Store) Current() Session {
	return s.obs.Get()
}

// HasPermission reports whether the current session holds the named
// capability.
func (s *Store) HasPermission(name string) bool {
	return s.Current().HasPermission(name)
}

// Subscribe registers fn for synchronous delivery of every Session
// replacement. fn is invoked immediately with the current Session; the
// returned function unregisters it.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	return s.obs.Subscribe(fn)
}

func (s *Store) read(key string) (string, bool) {
	v, ok, err := s.storage.Get(key)
	if err != nil {
		s.logger.Warn("session storage read failed", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (s *Store) clearStorage() {
	if err := s.storage.Delete(keyAccessToken, keyRefreshToken, keyCSRFToken, keyUser, keyPermissions); err != nil {
		s.logger.Warn("session storage clear failed", "error", err)
	}
}
