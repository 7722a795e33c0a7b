package e2e

import (
	"bufio"
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnhub/console/internal/app"
	"github.com/learnhub/console/internal/auth"
	"github.com/learnhub/console/internal/crosstab"
	"github.com/learnhub/console/internal/dashboard"
	"github.com/learnhub/console/internal/observability"
	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/rbac"
	"github.com/learnhub/console/internal/shared"
	"github.com/learnhub/console/internal/staff"
	"github.com/learnhub/console/internal/view"
	_ "github.com/learnhub/console/testing"
)

type staffStore struct {
	mu       sync.Mutex
	members  map[int64]permissions.Identity
	accounts map[string]*auth.User
	tokens   map[string]auth.Token
}

func newStaffStore(t *testing.T) *staffStore {
	t.Helper()
	hash := func(password string) string {
		out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		return string(out)
	}
	return &staffStore{
		members: map[int64]permissions.Identity{
			1: {ID: 1, Username: "admin", FirstName: "Ada", IsSuperuser: true, Flags: permissions.Flags{}},
			2: {ID: 2, Username: "amina", FirstName: "Amina", Flags: permissions.Flags{permissions.CapManageQuizzes: true}},
		},
		accounts: map[string]*auth.User{
			"admin@learnhub.local": {ID: 1, Email: "admin@learnhub.local", PasswordHash: hash("admin12345"), IsActive: true},
			"amina@learnhub.local": {ID: 2, Email: "amina@learnhub.local", PasswordHash: hash("amina12345"), IsActive: true},
		},
		tokens: map[string]auth.Token{},
	}
}

func (s *staffStore) Get(_ context.Context, id int64) (permissions.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return permissions.Identity{}, staff.ErrNotFound
	}
	return *m.Clone(), nil
}

func (s *staffStore) List(context.Context) ([]permissions.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]permissions.Identity, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, *m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *staffStore) UpdateFlags(_ context.Context, id int64, patch permissions.Flags) (permissions.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok || m.IsSuperuser {
		return permissions.Identity{}, staff.ErrNotFound
	}
	next := m.Clone()
	for c, v := range patch {
		next.Flags[c] = v
	}
	s.members[id] = *next
	return *next.Clone(), nil
}

func (s *staffStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *staffStore) CreateToken(_ context.Context, token auth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[string(token.Hash)] = token
	return nil
}

func (s *staffStore) FindToken(_ context.Context, hash []byte) (*auth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[string(hash)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &token, nil
}

func (s *staffStore) DeleteToken(_ context.Context, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, string(hash))
	return nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	changes []staff.PermissionChange
}

func (a *recordingAuditor) PermissionChanged(_ context.Context, change staff.PermissionChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, change)
	return nil
}

func (a *recordingAuditor) all() []staff.PermissionChange {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]staff.PermissionChange(nil), a.changes...)
}

type console struct {
	server   *httptest.Server
	registry *dashboard.Registry
	auditor  *recordingAuditor
	store    *staffStore
	metrics  *observability.Metrics
}

// startConsole runs the whole console in process: the staff API and the dashboard share one
// server and the dashboard talks to the API over real HTTP.
func startConsole(t *testing.T) *console {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	var handler http.Handler
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := &app.Config{AppRequestTimeout: 5 * time.Second, LogFormat: "json"}
	logger := app.NewLogger(cfg)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(redisClient, "learnhub_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	metrics := observability.NewMetrics()

	store := newStaffStore(t)
	auditor := &recordingAuditor{}
	staffService := staff.NewService(store, auditor, logger)
	authService := auth.NewService(store, time.Hour)
	authHandler := auth.NewHandler(logger, authService, templates, sessions, csrf)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	transport := crosstab.NewRedisTransport(redisClient, logger)
	require.NoError(t, transport.Start(ctx))
	t.Cleanup(func() { _ = transport.Close() })

	registry := dashboard.NewRegistry(64, time.Hour, time.Second)
	t.Cleanup(registry.Close)
	factory := &dashboard.Factory{
		BackendURL: server.URL + "/api/v1",
		HTTPClient: server.Client(),
		Transport:  transport,
		Observer:   metrics,
		Logger:     logger,
	}
	dashboardHandler := dashboard.NewHandler(logger, templates, csrf, factory, registry)
	authHandler.OnLogout(func(sessionID string) { registry.CloseSession(sessionID) })

	handler = app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessions,
		CSRFManager:      csrf,
		AuthHandler:      authHandler,
		BearerMiddleware: auth.Middleware{Service: authService, Staff: staffService, Logger: logger},
		StaffHandler:     staff.NewHandler(logger, staffService, rbac.Middleware{Logger: logger}),
		DashboardHandler: dashboardHandler,
		RBACHandler:      rbac.NewHandler(logger, templates, csrf, dashboardHandler),
		Metrics:          metrics,
	})

	return &console{server: server, registry: registry, auditor: auditor, store: store, metrics: metrics}
}

var csrfMeta = regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)">`)

// browser is one signed-in tab.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
	ctxID  string
	csrf   string
}

func (c *console) signIn(t *testing.T, email, password string) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	b := &browser{t: t, base: c.server.URL, client: &http.Client{Jar: jar, Timeout: 5 * time.Second}}

	body := b.get("/auth/login", http.StatusOK)
	b.scrapeCSRF(body)

	res, err := b.client.PostForm(b.base+"/auth/login", url.Values{
		"email":      {email},
		"password":   {password},
		"csrf_token": {b.csrf},
	})
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	b.ctxID = res.Request.URL.Query().Get(dashboard.ContextParam)
	require.NotEmpty(t, b.ctxID, "signing in lands on a mounted context")
	return b
}

func (b *browser) get(path string, want int) string {
	b.t.Helper()
	res, err := b.client.Get(b.base + path)
	require.NoError(b.t, err)
	defer res.Body.Close()
	var sb strings.Builder
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	require.Equal(b.t, want, res.StatusCode, "GET %s", path)
	return sb.String()
}

func (b *browser) scrapeCSRF(body string) {
	b.t.Helper()
	match := csrfMeta.FindStringSubmatch(body)
	require.Len(b.t, match, 2, "csrf meta tag")
	b.csrf = match[1]
}

func (b *browser) page(path string) string {
	return path + "?ctx=" + url.QueryEscape(b.ctxID)
}

func TestPermissionToggleReachesOtherSession(t *testing.T) {
	c := startConsole(t)
	admin := c.signIn(t, "admin@learnhub.local", "admin12345")
	amina := c.signIn(t, "amina@learnhub.local", "amina12345")

	home := amina.get(amina.page("/"), http.StatusOK)
	assert.Contains(t, home, "Quizzes")
	assert.NotContains(t, home, ">Courses<")
	amina.get(amina.page("/courses"), http.StatusForbidden)
	amina.get(amina.page("/rbac"), http.StatusForbidden)

	screen := admin.get(admin.page("/rbac"), http.StatusOK)
	assert.Contains(t, screen, "Amina")
	admin.scrapeCSRF(screen)

	res, err := admin.client.PostForm(admin.base+"/rbac/2/toggle?ctx="+url.QueryEscape(admin.ctxID), url.Values{
		"capability": {"manage_courses"},
		"csrf_token": {admin.csrf},
	})
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "/rbac", res.Request.URL.Path)

	require.Eventually(t, func() bool {
		res, err := amina.client.Get(amina.base + amina.page("/courses"))
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond, "the other session picks up the grant without reloading")

	assert.Contains(t, amina.get(amina.page("/"), http.StatusOK), ">Courses<")

	changes := c.auditor.all()
	require.Len(t, changes, 1)
	assert.Equal(t, int64(1), changes[0].ActorID)
	assert.Equal(t, int64(2), changes[0].TargetID)
	assert.Equal(t, "manage courses granted", changes[0].Diff.String())

	events := amina.stream(t, "/")
	assertEvent(t, events, "toast", "manage courses granted")
	adminEvents := admin.stream(t, "/rbac")
	assertEvent(t, adminEvents, "toast", "manage courses granted for Amina")
}

func TestLogoutUnmountsContexts(t *testing.T) {
	c := startConsole(t)
	amina := c.signIn(t, "amina@learnhub.local", "amina12345")
	require.Equal(t, 1, c.registry.Len())

	body := amina.get(amina.page("/"), http.StatusOK)
	amina.scrapeCSRF(body)
	res, err := amina.client.PostForm(amina.base+"/auth/logout", url.Values{"csrf_token": {amina.csrf}})
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "/auth/login", res.Request.URL.Path)
	assert.Zero(t, c.registry.Len())

	res, err = amina.client.Get(amina.base + "/api/v1/me")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

// stream opens the event stream of the tab and forwards decoded events until the test ends.
func (b *browser) stream(t *testing.T, path string) <-chan [2]string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+"/live/"+url.PathEscape(b.ctxID)+"?path="+url.QueryEscape(path), nil)
	require.NoError(t, err)
	client := &http.Client{Jar: b.client.Jar}
	res, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	out := make(chan [2]string, 16)
	go func() {
		defer res.Body.Close()
		defer close(out)
		scanner := bufio.NewScanner(res.Body)
		var name string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				out <- [2]string{name, strings.TrimPrefix(line, "data: ")}
			}
		}
	}()
	return out
}

func assertEvent(t *testing.T, events <-chan [2]string, name, contains string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed before %s event", name)
			if ev[0] == name && strings.Contains(ev[1], contains) {
				return
			}
		case <-deadline:
			t.Fatalf("no %s event containing %q", name, contains)
		}
	}
}
