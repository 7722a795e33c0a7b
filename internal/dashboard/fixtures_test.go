package dashboard

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/console/internal/crosstab"
	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/rbac"
	"github.com/learnhub/console/internal/shared"
	"github.com/learnhub/console/internal/view"
	_ "github.com/learnhub/console/testing"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var errUnknownToken = errors.New("401 unauthorized")

// directory is an in-memory staff backend shared by every mount of a test.
type directory struct {
	mu     sync.Mutex
	staff  map[int64]*permissions.Identity
	tokens map[string]int64
}

func newDirectory() *directory {
	return &directory{
		staff: map[int64]*permissions.Identity{
			1: {ID: 1, Username: "root", IsSuperuser: true, Flags: permissions.Flags{}},
			2: {ID: 2, Username: "amina", FirstName: "Amina", Flags: permissions.Flags{permissions.CapManageQuizzes: true}},
		},
		tokens: map[string]int64{"root-token": 1, "amina-token": 2},
	}
}

func (d *directory) backend(token string) Backend {
	return &directoryBackend{dir: d, token: token}
}

func (d *directory) grant(id int64, c permissions.Capability, value bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staff[id].Flags[c] = value
}

type directoryBackend struct {
	dir   *directory
	token string
}

func (b *directoryBackend) FetchCurrentUser(context.Context) (*permissions.Identity, error) {
	b.dir.mu.Lock()
	defer b.dir.mu.Unlock()
	id, ok := b.dir.tokens[b.token]
	if !ok {
		return nil, errUnknownToken
	}
	return b.dir.staff[id].Clone(), nil
}

func (b *directoryBackend) FetchAllStaffPermissions(context.Context) ([]permissions.Record, error) {
	b.dir.mu.Lock()
	defer b.dir.mu.Unlock()
	ids := make([]int64, 0, len(b.dir.staff))
	for id := range b.dir.staff {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]permissions.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.dir.staff[id].Record())
	}
	return out, nil
}

func (b *directoryBackend) UpdateStaffPermission(_ context.Context, id int64, patch map[permissions.Capability]bool) (rbac.UpdateResult, error) {
	b.dir.mu.Lock()
	defer b.dir.mu.Unlock()
	target, ok := b.dir.staff[id]
	if !ok {
		return rbac.UpdateResult{}, errors.New("404 not found")
	}
	for c, v := range patch {
		target.Flags[c] = v
	}
	return rbac.UpdateResult{Status: "ok", User: target.Record()}, nil
}

type harness struct {
	dir       *directory
	registry  *Registry
	factory   *Factory
	handler   *Handler
	router    http.Handler
	sessions  map[string]*shared.Session
	transport *crosstab.MemoryTransport
}

// newHarness wires the dashboard and the access control screen behind a router that picks
// the session named by the X-Test-Session header.
func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	manager := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	sessions := map[string]*shared.Session{}
	for name, cred := range map[string]shared.Credential{
		"root":  {StaffID: 1, Token: "root-token"},
		"amina": {StaffID: 2, Token: "amina-token"},
		"anon":  {},
	} {
		sess, err := manager.Load(context.Background(), req)
		require.NoError(t, err)
		if cred.Token != "" {
			sess.SignIn(cred.StaffID, cred.Token)
		}
		sessions[name] = sess
	}

	templates, err := view.NewEngine()
	require.NoError(t, err)

	dir := newDirectory()
	transport := crosstab.NewMemoryTransport()
	factory := &Factory{Transport: transport, NewBackend: dir.backend}
	registry := NewRegistry(16, time.Hour, 50*time.Millisecond)
	t.Cleanup(registry.Close)

	h := NewHandler(nil, templates, shared.NewCSRFManager("csrf"), factory, registry)
	h.heartbeat = 20 * time.Millisecond
	screens := rbac.NewHandler(nil, templates, shared.NewCSRFManager("csrf"), h)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := sessions[req.Header.Get("X-Test-Session")]
			if sess == nil {
				sess = sessions["anon"]
			}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	h.MountRoutes(r)
	r.Route("/rbac", screens.MountRoutes)

	return &harness{
		dir:       dir,
		registry:  registry,
		factory:   factory,
		handler:   h,
		router:    r,
		sessions:  sessions,
		transport: transport,
	}
}

// mount opens a context for the named session directly.
func (h *harness) mount(t *testing.T, session string) *Mount {
	t.Helper()
	sess := h.sessions[session]
	m, err := h.factory.Open(context.Background(), sess.ID, sess.Token())
	require.NoError(t, err)
	h.registry.Add(m)
	return m
}
