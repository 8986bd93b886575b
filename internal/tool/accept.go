package tool

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher evaluates an HTML-style accept list such as "application/pdf" or
// "image/*,.pdf" against a file.
type Matcher struct {
	types []glob.Glob
	exts  map[string]struct{}
}

// CompileAccept parses a comma separated accept list. An empty list accepts
// everything.
func CompileAccept(accept string) (*Matcher, error) {
	m := &Matcher{exts: make(map[string]struct{})}
	for _, token := range strings.Split(accept, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if strings.HasPrefix(token, ".") {
			m.exts[token] = struct{}{}
			continue
		}
		g, err := glob.Compile(token, '/')
		if err != nil {
			return nil, fmt.Errorf("compile accept %q: %w", token, err)
		}
		m.types = append(m.types, g)
	}
	return m, nil
}

// Match reports whether the file is accepted.
func (m *Matcher) Match(name, contentType string) bool {
	if len(m.types) == 0 && len(m.exts) == 0 {
		return true
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if _, ok := m.exts[ext]; ok {
			return true
		}
	}
	mediaType := normalizeMediaType(contentType)
	if mediaType == "" {
		return false
	}
	for _, g := range m.types {
		if g.Match(mediaType) {
			return true
		}
	}
	return false
}

func normalizeMediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.ToLower(mediaType)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
