// Package routes decides whether a URL stays inside the embedded surface or
// is handed to the user's default browser.
package routes

import (
	"net/url"
	"strings"
)

// wildcardSuffix marks a route that matches anything under its fixed prefix.
const wildcardSuffix = "/*"

// Decision is the outcome of classifying a URL.
type Decision int

const (
	// Inline keeps the navigation inside the embedded surface.
	Inline Decision = iota
	// External hands the URL to the OS default browser.
	External
)

func (d Decision) String() string {
	switch d {
	case External:
		return "external"
	default:
		return "inline"
	}
}

// Route is a public path prefix.
type Route struct {
	Prefix   string
	Wildcard bool
}

// ParseRoute turns "/docs/*" into a wildcard route with prefix "/docs".
func ParseRoute(s string) Route {
	if strings.HasSuffix(s, wildcardSuffix) {
		return Route{Prefix: strings.TrimSuffix(s, wildcardSuffix), Wildcard: true}
	}
	return Route{Prefix: s}
}

// Matches reports whether path falls under the route.
// "/blog" matches "/blog" and "/blog/x" but not "/blogger".
func (r Route) Matches(path string) bool {
	if r.Wildcard {
		return strings.HasPrefix(path, r.Prefix)
	}
	return path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/")
}

// Classifier maps URLs to a Decision. It is immutable once built and safe
// for concurrent use.
type Classifier struct {
	routes []Route
}

// NewClassifier builds a classifier from route strings, evaluated in order.
func NewClassifier(routes ...string) *Classifier {
	c := &Classifier{routes: make([]Route, 0, len(routes))}
	for _, r := range routes {
		if r == "" {
			continue
		}
		c.routes = append(c.routes, ParseRoute(r))
	}
	return c
}

// Routes returns a copy of the configured routes.
func (c *Classifier) Routes() []Route {
	out := make([]Route, len(c.routes))
	copy(out, c.routes)
	return out
}

// Classify returns External when the URL's path matches a public route.
// Query and fragment are ignored. URLs that fail to parse are Inline.
func (c *Classifier) Classify(rawURL string) Decision {
	if c == nil || strings.TrimSpace(rawURL) == "" {
		return Inline
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Inline
	}
	path := u.Path
	if path == "" {
		// "https://host" and "https://host?x" address the root document
		if u.Opaque != "" {
			return Inline
		}
		path = "/"
	}
	return c.ClassifyPath(path)
}

// ClassifyPath classifies an already decomposed pathname. First match wins.
func (c *Classifier) ClassifyPath(path string) Decision {
	if c == nil {
		return Inline
	}
	for _, r := range c.routes {
		if r.Matches(path) {
			return External
		}
	}
	return Inline
}
