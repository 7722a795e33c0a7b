package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "learnhub:session:"

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Credential is what a signed-in session carries: the staff member and the bearer token the
// dashboard presents to the staff API on their behalf.
type Credential struct {
	StaffID  int64     `json:"staff_id"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
	now        func() time.Time
}

// Session holds per-request session data.
type Session struct {
	ID         string
	values     map[string]string
	credential *Credential
	flashes    []FlashMessage
	// replaced is the id dropped by Renew; its Redis key is removed on Commit.
	replaced  string
	isNew     bool
	dirty     bool
	destroyed bool
	now       func() time.Time
}

type sessionPayload struct {
	Values     map[string]string `json:"values"`
	Credential *Credential       `json:"credential,omitempty"`
	Flashes    []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager. Cookies carry "<id>.<mac>" where mac is an
// HMAC-SHA256 of the id under secret.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
		now:        time.Now,
	}
}

// Load returns the session named by the request cookie, or a fresh one.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}
	id, ok := sm.verify(cookie.Value)
	if !ok {
		return sm.newSession(), nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.newSession(), nil
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}

	sess := sm.newSession()
	sess.ID = id
	if stored.Values != nil {
		sess.values = stored.Values
	}
	sess.credential = stored.Credential
	sess.flashes = stored.Flashes
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.replaced != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.replaced)).Err(); err != nil {
			return fmt.Errorf("session: drop replaced: %w", err)
		}
		sess.replaced = ""
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil {
			return fmt.Errorf("session: destroy: %w", err)
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sessionPayload{Values: sess.values, Credential: sess.credential, Flashes: sess.flashes})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return fmt.Errorf("session: save: %w", err)
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, sm.cookie(sm.sign(sess.ID), int(sm.ttl/time.Second)))
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

func (sm *SessionManager) sign(id string) string {
	mac := hmac.New(sha256.New, sm.secret)
	_, _ = mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (sm *SessionManager) verify(value string) (string, bool) {
	id, _, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	if !hmac.Equal([]byte(sm.sign(id)), []byte(value)) {
		return "", false
	}
	return id, true
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SignIn binds the session to a staff member and their bearer token. The session id is
// renewed so an id handed out before sign-in never carries a credential.
func (s *Session) SignIn(staffID int64, token string) {
	if !s.isNew {
		s.Renew()
	}
	s.credential = &Credential{StaffID: staffID, Token: token, IssuedAt: s.now().UTC()}
	s.dirty = true
}

// Renew moves the session to a fresh id, keeping its contents.
func (s *Session) Renew() {
	if s.replaced == "" {
		s.replaced = s.ID
	}
	s.ID = uuid.NewString()
	s.dirty = true
}

// Credential returns the signed-in credential, if any.
func (s *Session) Credential() (Credential, bool) {
	if s == nil || s.credential == nil || s.credential.Token == "" {
		return Credential{}, false
	}
	return *s.credential, true
}

// Token returns the bearer token of the signed-in staff member, or "".
func (s *Session) Token() string {
	cred, _ := s.Credential()
	return cred.Token
}

// StaffID returns the signed-in staff id, or 0.
func (s *Session) StaffID() int64 {
	cred, _ := s.Credential()
	return cred.StaffID
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:     uuid.NewString(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
		now:    sm.now,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return sessionKeyPrefix + id
}
