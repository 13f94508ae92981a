package engine

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Class is the resource class of an intercepted request
type Class int

const (
	ClassNavigation Class = iota
	ClassAPIRead
	ClassAPIWrite
	ClassImage
	ClassStatic
)

func (c Class) String() string {
	switch c {
	case ClassNavigation:
		return "navigation"
	case ClassAPIRead:
		return "api-read"
	case ClassAPIWrite:
		return "api-write"
	case ClassImage:
		return "image"
	case ClassStatic:
		return "static"
	}
	return "unknown"
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".ico": true, ".avif": true,
}

var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".woff": true, ".woff2": true,
	".ttf": true, ".map": true, ".json": true, ".wasm": true,
}

// classify assigns a resource class to a request. Mutating methods are
// always api-write; GETs are classified by extension, API prefix, and the
// Accept header.
func (e *Engine) classify(req *Request) Class {
	if req.Method != http.MethodGet {
		return ClassAPIWrite
	}

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return ClassAPIRead
	}

	for _, prefix := range e.apiPrefixes {
		if strings.HasPrefix(parsed.Path, prefix) {
			return ClassAPIRead
		}
	}

	ext := strings.ToLower(path.Ext(parsed.Path))
	if imageExtensions[ext] {
		return ClassImage
	}
	if staticExtensions[ext] {
		return ClassStatic
	}

	if accept := req.Header.Get("Accept"); strings.Contains(accept, "text/html") {
		return ClassNavigation
	}

	// Fail-safe: unclassified reads are treated as API traffic so they never
	// silently serve unbounded-age data
	return ClassAPIRead
}
