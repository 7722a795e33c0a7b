// Package web carries the dashboard templates and the stream client assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/**/*.html
var Templates embed.FS

//go:embed static/**/*
var static embed.FS

// Static returns the static assets rooted at their URL prefix, so /static/js/live.js maps to
// js/live.js.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
