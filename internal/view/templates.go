// Package view renders the dashboard pages from the embedded templates.
package view

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"

	"github.com/learnhub/console/internal/navigation"
	"github.com/learnhub/console/internal/permissions"
	"github.com/learnhub/console/internal/shared"
	"github.com/learnhub/console/web"
)

var errNoEngine = errors.New("view: template engine not initialised")

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	buffers   sync.Pool
}

// Page carries the browsing context chrome: who is signed in and the menu they see.
type Page struct {
	ContextID string
	User      *permissions.Identity
	Menu      []navigation.Entry
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Page        Page
	Data        any
}

// Funcs are the helpers every template may call.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"capTitle": func(c permissions.Capability) string {
			return c.Title()
		},
		// withCtx keeps links inside the browsing context they were rendered for.
		"withCtx": func(path, ctx string) string {
			if ctx == "" {
				return path
			}
			return path + "?ctx=" + url.QueryEscape(ctx)
		},
	}
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").Funcs(Funcs()).ParseFS(web.Templates,
		"templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse templates: %w", err)
	}
	e := &Engine{templates: tpl}
	e.buffers.New = func() any { return new(bytes.Buffer) }
	return e, nil
}

// Render writes the named template with status. The page is rendered into a buffer first
// so a template error yields a clean 500 instead of half a page.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return errNoEngine
	}
	buf := e.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer e.buffers.Put(buf)

	if err := e.templates.ExecuteTemplate(buf, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return fmt.Errorf("view: render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
