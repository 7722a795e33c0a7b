package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/learnhub/console/internal/identity"
	"github.com/learnhub/console/internal/notify"
)

type navEntry struct {
	Label  string `json:"label"`
	Path   string `json:"path"`
	Active bool   `json:"active"`
}

type navEvent struct {
	Entries []navEntry `json:"entries"`
	Allowed bool       `json:"allowed"`
}

type toastEvent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Variant     string `json:"variant"`
}

type dismissEvent struct {
	ID string `json:"id"`
}

type sseEvent struct {
	name    string
	payload any
}

const toastBuffer = 64

// stream pushes menu and toast changes of one context as server-sent events until the
// client goes away or the context is unmounted.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveMount(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	// the server write timeout is meant for pages, not for streams
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("dashboard: keep write deadline", slog.Any("error", err))
	}

	m.attach()
	defer h.registry.Detach(m)

	navDirty := make(chan struct{}, 1)
	toasts := make(chan sseEvent, toastBuffer)
	stopWatch := m.Store.Watch(func(s identity.Snapshot) {
		if s.Loading() {
			return
		}
		select {
		case navDirty <- struct{}{}:
		default:
		}
	})
	defer stopWatch()
	stopToasts := m.Toasts.Subscribe(func(ev notify.Event) {
		var out sseEvent
		switch ev.Kind {
		case notify.EventPushed:
			out = sseEvent{name: "toast", payload: toToast(ev.Item)}
		case notify.EventDismissed:
			out = sseEvent{name: "dismiss", payload: dismissEvent{ID: ev.Item.ID}}
		default:
			return
		}
		select {
		case toasts <- out:
		default:
			h.logger.Warn("dashboard: toast stream full", slog.String("context", m.ID()))
		}
	})
	defer stopToasts()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "nav", h.nav(m, path)); err != nil {
		return
	}
	items := m.Toasts.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if err := writeEvent(w, "toast", toToast(items[i])); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-m.Done():
			return
		case <-navDirty:
			err = writeEvent(w, "nav", h.nav(m, path))
		case ev := <-toasts:
			err = writeEvent(w, ev.name, ev.payload)
		case <-heartbeat.C:
			_, err = io.WriteString(w, ": ping\n\n")
		}
		if err != nil {
			h.logger.Debug("dashboard: stream closed", slog.String("context", m.ID()), slog.Any("error", err))
			return
		}
		flusher.Flush()
	}
}

func (h *Handler) nav(m *Mount, path string) navEvent {
	entries := m.Surface.Entries(path)
	out := navEvent{Entries: make([]navEntry, 0, len(entries)), Allowed: m.Surface.Allowed(path)}
	for _, e := range entries {
		out.Entries = append(out.Entries, navEntry{Label: e.Label, Path: e.Path, Active: e.Active})
	}
	return out
}

func toToast(item notify.Item) toastEvent {
	return toastEvent{ID: item.ID, Title: item.Title, Description: item.Description, Variant: string(item.Variant)}
}

func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
