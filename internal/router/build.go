package router

import (
	"sort"
	"strings"

	"github.com/alexisbeaulieu97/weaver/internal/diagnostics"
)

// Build assembles the router from flattened route and fallback entries.
//
// defaultFallbackID is the framework-provided fallback used wherever the user
// registered none. Routing mistakes (duplicate method registrations, path
// conflicts, shadowed fallbacks) are reported to the sink; the affected
// entries are skipped so a single run surfaces every conflict.
func Build(
	entries []RouteEntry,
	fallbacks []FallbackEntry,
	defaultFallbackID ID,
	sink *diagnostics.Sink,
) *Router {
	domainBased := false
	for _, e := range entries {
		if e.Domain != "" {
			domainBased = true
		}
	}
	for _, f := range fallbacks {
		if f.Domain != "" {
			domainBased = true
		}
	}

	// Reject fallbacks that shadow each other: same domain, same prefix.
	seenFallbacks := make(map[string]FallbackEntry)
	validFallbacks := make([]FallbackEntry, 0, len(fallbacks))
	for _, f := range fallbacks {
		key := f.Domain + "\x00" + normalizePrefix(f.PathPrefix)
		if prev, ok := seenFallbacks[key]; ok {
			sink.Push(
				diagnostics.NewError(
					"two fallbacks registered for the same prefix %q: one shadows the other",
					displayPrefix(f.PathPrefix),
				).
					PrimaryLocation(f.Location, "this fallback is shadowed").
					SecondaryLocation(prev.Location, "by this fallback").
					Help("remove one of the two fallback registrations").
					Build(),
			)
			continue
		}
		seenFallbacks[key] = f
		validFallbacks = append(validFallbacks, f)
	}

	rootFallbackID := defaultFallbackID
	for _, f := range validFallbacks {
		if f.Domain == "" && normalizePrefix(f.PathPrefix) == "" {
			rootFallbackID = f.FallbackID
		}
	}

	if !domainBased {
		return &Router{Agnostic: buildPathRouter(entries, validFallbacks, "", rootFallbackID, sink)}
	}

	domains := make(map[string][]RouteEntry)
	for _, e := range entries {
		domains[e.Domain] = append(domains[e.Domain], e)
	}
	for _, f := range validFallbacks {
		if f.Domain != "" {
			if _, ok := domains[f.Domain]; !ok {
				domains[f.Domain] = nil
			}
		}
	}

	domainKeys := make([]string, 0, len(domains))
	for domain := range domains {
		domainKeys = append(domainKeys, domain)
	}
	sort.Strings(domainKeys)

	router := &DomainRouter{
		Routers:        make(map[string]*PathRouter, len(domains)),
		Guards:         make(map[string]DomainGuard, len(domains)),
		RootFallbackID: rootFallbackID,
	}
	for _, domain := range domainKeys {
		if domain == "" {
			// Domain-agnostic routes in a domain-based router live under the
			// catch-all guard and keep the root fallback.
			router.Routers[""] = buildPathRouter(domains[domain], validFallbacks, "", rootFallbackID, sink)
			continue
		}
		guard, err := ParseDomainGuard(domain)
		if err != nil {
			loc := diagnostics.Location{}
			for _, e := range domains[domain] {
				loc = e.Location
				break
			}
			sink.Push(
				diagnostics.NewError("invalid domain guard %q: %v", domain, err).
					PrimaryLocation(loc, "registered here").
					Build(),
			)
			continue
		}
		router.Routers[domain] = buildPathRouter(domains[domain], validFallbacks, domain, rootFallbackID, sink)
		router.Guards[domain] = guard
	}

	return &Router{Domains: router}
}

func buildPathRouter(
	entries []RouteEntry,
	fallbacks []FallbackEntry,
	domain string,
	rootFallbackID ID,
	sink *diagnostics.Sink,
) *PathRouter {
	domainRootFallback := rootFallbackID
	var domainFallbacks []FallbackEntry
	for _, f := range fallbacks {
		if f.Domain != domain {
			continue
		}
		if normalizePrefix(f.PathPrefix) == "" {
			domainRootFallback = f.FallbackID
			continue
		}
		domainFallbacks = append(domainFallbacks, f)
	}

	p := &PathRouter{
		Paths:          make(map[string]*LeafRouter),
		RootFallbackID: domainRootFallback,
	}
	trie := newTrieNode()
	registered := make(map[string]map[string]RouteEntry)

	for _, e := range entries {
		if _, ok := p.Paths[e.Path]; !ok {
			if err := trie.insert(e.Path); err != nil {
				sink.Push(
					diagnostics.NewError("route path %q conflicts with a previous registration: %v", e.Path, err).
						PrimaryLocation(e.Location, "registered here").
						Build(),
				)
				continue
			}
			p.Paths[e.Path] = &LeafRouter{
				HandlerMethods: make(map[ID][]string),
				FallbackID:     pathFallback(e.Path, domainFallbacks, domainRootFallback),
			}
			registered[e.Path] = make(map[string]RouteEntry)
		}

		leaf := p.Paths[e.Path]
		methods := expandMethod(e.Method)
		conflict := false
		for _, method := range methods {
			if prev, ok := registered[e.Path][method]; ok {
				sink.Push(
					diagnostics.NewError(
						"%s %s is registered against two different handlers",
						method, routeDisplay(e.Path, domain),
					).
						PrimaryLocation(e.Location, "second registration").
						SecondaryLocation(prev.Location, "first registration").
						Help("remove one of the two registrations or change its method set").
						Build(),
				)
				conflict = true
			}
		}
		if conflict {
			continue
		}
		for _, method := range methods {
			registered[e.Path][method] = e
		}
		leaf.HandlerMethods[e.HandlerID] = mergeMethods(leaf.HandlerMethods[e.HandlerID], methods)
	}

	return p
}

func pathFallback(path string, fallbacks []FallbackEntry, domainRootFallback ID) ID {
	best := domainRootFallback
	bestLen := -1
	for _, f := range fallbacks {
		prefix := normalizePrefix(f.PathPrefix)
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			if len(prefix) > bestLen {
				best = f.FallbackID
				bestLen = len(prefix)
			}
		}
	}
	return best
}

func expandMethod(method string) []string {
	method = strings.ToUpper(method)
	if method == "ANY" {
		return []string{
			"CONNECT", "DELETE", "GET", "HEAD", "OPTIONS", "PATCH", "POST", "PUT", "TRACE",
		}
	}
	return []string{method}
}

func mergeMethods(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, m := range append(append([]string(nil), existing...), added...) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		merged = append(merged, m)
	}
	sort.Strings(merged)
	return merged
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" || prefix == "/" {
		return ""
	}
	return prefix
}

func displayPrefix(prefix string) string {
	if normalizePrefix(prefix) == "" {
		return "/"
	}
	return normalizePrefix(prefix)
}

func routeDisplay(path, domain string) string {
	if domain == "" {
		return path
	}
	return path + " [for " + domain + "]"
}
