package auth

import (
	"crypto/rand"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/aethra/makazi/internal/config"
	"github.com/aethra/makazi/internal/models"
)

const (
	sessUserID    = "user_id"
	sessFullName  = "full_name"
	sessUsername  = "username"
	sessRole      = "role"
	sessWardID    = "ward_id"
	sessVillageID = "village_id"
)

// SessionManager stores the signed-in actor in a gorilla cookie session
type SessionManager struct {
	store *sessions.CookieStore
	name  string
}

// NewSessionManager creates the cookie store. An empty secret is replaced by
// a random one, which logs every browser out on restart.
func NewSessionManager(cfg config.SessionConfig, logger *zap.Logger) (*SessionManager, error) {
	key := []byte(cfg.Secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		if logger != nil {
			logger.Warn("SESSION_SECRET not set, using a random key")
		}
	} else if len(key) < 32 && logger != nil {
		logger.Warn("session key is short; 32+ chars recommended", zap.Int("length", len(key)))
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Domain:   cfg.Domain,
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	name := cfg.Name
	if name == "" {
		name = "makazi-session"
	}
	return &SessionManager{store: store, name: name}, nil
}

// Save writes the actor into the session cookie
func (m *SessionManager) Save(w http.ResponseWriter, r *http.Request, a *Actor) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values[sessUserID] = a.UserID
	sess.Values[sessFullName] = a.FullName
	sess.Values[sessUsername] = a.Username
	sess.Values[sessRole] = string(a.Role)
	sess.Values[sessWardID] = derefUint(a.WardID)
	sess.Values[sessVillageID] = derefUint(a.VillageID)
	return sess.Save(r, w)
}

// Load reads the actor from the session cookie
func (m *SessionManager) Load(r *http.Request) (*Actor, bool) {
	sess, err := m.store.Get(r, m.name)
	if err != nil || sess.IsNew {
		return nil, false
	}
	id, ok := sess.Values[sessUserID].(uint)
	if !ok || id == 0 {
		return nil, false
	}
	role, err := models.ParseRole(getString(sess, sessRole))
	if err != nil {
		return nil, false
	}
	return &Actor{
		UserID:    id,
		FullName:  getString(sess, sessFullName),
		Username:  getString(sess, sessUsername),
		Role:      role,
		WardID:    optionalUint(sess.Values[sessWardID]),
		VillageID: optionalUint(sess.Values[sessVillageID]),
	}, true
}

// Clear expires the session cookie
func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func getString(sess *sessions.Session, key string) string {
	s, _ := sess.Values[key].(string)
	return s
}

func derefUint(p *uint) uint {
	if p == nil {
		return 0
	}
	return *p
}

func optionalUint(v interface{}) *uint {
	u, ok := v.(uint)
	if !ok || u == 0 {
		return nil
	}
	return &u
}
