// Package navigation projects the current identity onto the dashboard menu.
package navigation

import (
	"strings"

	"github.com/learnhub/console/internal/permissions"
)

// IdentitySource exposes the identity a surface renders for.
type IdentitySource interface {
	Identity() *permissions.Identity
}

// Entry is one rendered menu item.
type Entry struct {
	permissions.Destination
	Active bool
}

// Surface derives the menu on every call; it holds no state of its own.
type Surface struct {
	source  IdentitySource
	catalog []permissions.Destination
}

// NewSurface builds a surface over source. A nil catalog means permissions.Catalog().
func NewSurface(source IdentitySource, catalog []permissions.Destination) *Surface {
	if catalog == nil {
		catalog = permissions.Catalog()
	}
	return &Surface{source: source, catalog: catalog}
}

// Destinations returns the visible destinations in menu order.
func (s *Surface) Destinations() []permissions.Destination {
	return permissions.VisibleDestinations(s.source.Identity(), s.catalog)
}

// Entries returns the visible menu with the entry matching path marked active.
func (s *Surface) Entries(path string) []Entry {
	visible := s.Destinations()
	active := longestMatch(visible, path)
	entries := make([]Entry, 0, len(visible))
	for i, d := range visible {
		entries = append(entries, Entry{Destination: d, Active: i == active})
	}
	return entries
}

// Allowed reports whether the current identity may open path. The catalog destination with
// the longest matching path decides; paths outside the catalog only need an identity.
func (s *Surface) Allowed(path string) bool {
	identity := s.source.Identity()
	if identity == nil {
		return false
	}
	idx := longestMatch(s.catalog, path)
	if idx < 0 {
		return true
	}
	return permissions.IsDestinationVisible(identity, s.catalog[idx])
}

func longestMatch(destinations []permissions.Destination, path string) int {
	best, bestLen := -1, -1
	for i, d := range destinations {
		if !matches(d.Path, path) {
			continue
		}
		if len(d.Path) > bestLen {
			best, bestLen = i, len(d.Path)
		}
	}
	return best
}

func matches(prefix, path string) bool {
	if prefix == "/" {
		return path == "/" || path == ""
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
