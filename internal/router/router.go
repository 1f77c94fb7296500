// Package router builds the two-level (domain → path → method) dispatch
// table that the generated application embeds.
//
// The router is assembled before the component database is consulted, so it
// references handlers and fallbacks by their user-component ids. Those ids
// are kept as they are, up to the emitter hand-off.
package router

import (
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
)

// ID is an opaque component reference. The user-component database builds the
// router with its own ids; callers convert them back to usercomponents.ID.
type ID = int

// RouteEntry is one route registration, flattened from the blueprint tree.
type RouteEntry struct {
	HandlerID ID
	Method    string
	Path      string
	Domain    string
	Location  diagnostics.Location
}

// FallbackEntry is one fallback registration with the path prefix and domain
// accumulated along its blueprint chain.
type FallbackEntry struct {
	FallbackID ID
	PathPrefix string
	Domain     string
	Location   diagnostics.Location
}

// LeafRouter dispatches on method once a path has matched.
type LeafRouter struct {
	// HandlerMethods maps each handler to the sorted set of methods it
	// accepts. The "ANY" method matches everything.
	HandlerMethods map[ID][]string
	// FallbackID handles requests that matched the path but no method.
	FallbackID ID
}

// HandlerIDs returns the handlers of the leaf, including the fallback, in
// ascending id order.
func (l *LeafRouter) HandlerIDs() []ID {
	ids := make([]ID, 0, len(l.HandlerMethods)+1)
	for id := range l.HandlerMethods {
		ids = append(ids, id)
	}
	ids = append(ids, l.FallbackID)
	sort.Ints(ids)
	return ids
}

// PathRouter dispatches on path, then method.
type PathRouter struct {
	// Paths maps each registered path pattern to its leaf router.
	Paths map[string]*LeafRouter
	// RootFallbackID handles requests that matched no path.
	RootFallbackID ID
}

// SortedPaths returns the registered path patterns in lexicographic order.
func (p *PathRouter) SortedPaths() []string {
	paths := make([]string, 0, len(p.Paths))
	for path := range p.Paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// HandlerIDs returns every handler and fallback of the path router, ordered.
func (p *PathRouter) HandlerIDs() []ID {
	seen := make(map[ID]struct{})
	var ids []ID
	add := func(id ID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, path := range p.SortedPaths() {
		for _, id := range p.Paths[path].HandlerIDs() {
			add(id)
		}
	}
	add(p.RootFallbackID)
	sort.Ints(ids)
	return ids
}

// DomainRouter dispatches on domain first.
type DomainRouter struct {
	// Routers maps each guard key to the path router for that domain.
	Routers map[string]*PathRouter
	// Guards maps guard keys back to their parsed form.
	Guards map[string]DomainGuard
	// RootFallbackID handles requests whose host matches no guard.
	RootFallbackID ID
}

// SortedGuardKeys returns the guard keys in lexicographic order.
func (d *DomainRouter) SortedGuardKeys() []string {
	keys := make([]string, 0, len(d.Routers))
	for key := range d.Routers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Router is either domain-agnostic or domain-based; exactly one branch is set.
type Router struct {
	Agnostic *PathRouter
	Domains  *DomainRouter
}

// RouteInfo describes the route served by a handler, for diagnostics.
type RouteInfo struct {
	Methods []string
	Path    string
	Domain  string
}

func (i RouteInfo) String() string {
	methods := "*"
	if len(i.Methods) > 0 {
		methods = strings.Join(i.Methods, " | ")
	}
	s := methods + " " + i.Path
	if i.Domain != "" {
		s += " [for " + i.Domain + "]"
	}
	return s
}

// HandlerIDs returns the ordered set of ids that can handle requests,
// including every fallback. The ordering is deterministic so downstream
// passes can assign stable ids.
func (r *Router) HandlerIDs() []ID {
	if r.Agnostic != nil {
		return r.Agnostic.HandlerIDs()
	}
	seen := make(map[ID]struct{})
	var ids []ID
	add := func(id ID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, key := range r.Domains.SortedGuardKeys() {
		for _, id := range r.Domains.Routers[key].HandlerIDs() {
			add(id)
		}
	}
	add(r.Domains.RootFallbackID)
	sort.Ints(ids)
	return ids
}

// RouteInfos maps each handler and fallback to the route it serves.
func (r *Router) RouteInfos() map[ID]RouteInfo {
	infos := make(map[ID]RouteInfo)

	collect := func(p *PathRouter, domain string) {
		if _, ok := infos[p.RootFallbackID]; !ok {
			infos[p.RootFallbackID] = RouteInfo{Path: "*", Domain: domain}
		}
		for _, path := range p.SortedPaths() {
			leaf := p.Paths[path]
			for id, methods := range leaf.HandlerMethods {
				infos[id] = RouteInfo{Methods: methods, Path: path, Domain: domain}
			}
			if _, ok := infos[leaf.FallbackID]; !ok {
				infos[leaf.FallbackID] = RouteInfo{Path: path, Domain: domain}
			}
		}
	}

	if r.Agnostic != nil {
		collect(r.Agnostic, "")
		return infos
	}
	for _, key := range r.Domains.SortedGuardKeys() {
		collect(r.Domains.Routers[key], key)
	}
	if _, ok := infos[r.Domains.RootFallbackID]; !ok {
		infos[r.Domains.RootFallbackID] = RouteInfo{Path: "*"}
	}
	return infos
}
