// Package tool defines the agent loop's tool vocabulary: the Tool
// interface every concrete tool implements, a thread-safe Registry, and a
// Policy that enforces path deny patterns against tool arguments.
package tool

import (
	"context"
	"fmt"
	pathpkg "path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Kind classifies what a tool does, driving default policy decisions.
type Kind string

const (
	KindRead    Kind = "read"    // read_file, list_directory, search_codebase, find_definition, get_training_logs
	KindEdit    Kind = "edit"    // modify_config
	KindControl Kind = "control" // set_next_command
	KindHandoff Kind = "handoff" // request_code_change
)

// Tool is the abstraction every concrete tool implementation satisfies.
type Tool interface {
	Name() string
	Description() string
	Kind() Kind
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (*Result, error)
}

// Result is a tool's outcome, reported back to the agent loop.
type Result struct {
	Output   string
	Success  bool
	Metadata map[string]interface{}
	Error    string
}

// Definition is a tool's shape as advertised to the model.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry is a thread-safe lookup of the tools available in a run.
type Registry interface {
	Register(tool Tool) error
	Get(name string) (Tool, bool)
	List() []Definition
}

// InMemoryRegistry is the default Registry implementation.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewInMemoryRegistry builds an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{tools: make(map[string]Tool)}
}

func (r *InMemoryRegistry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %s already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

func (r *InMemoryRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	return defs
}

// Policy enforces the deny_patterns configured for a session: glob
// patterns (including "**") matched against any argument that looks like
// a repository-relative path.
type Policy struct {
	DenyPatterns []string

	compiled []denyMatcher
	once     sync.Once
}

// denyMatcher holds the regexps a single deny pattern compiles to, mirroring
// is_denied's three-way check: an fnmatch-equivalent match against the full
// path, the same against the basename, and (only when the pattern contains
// "**") a looser prefix match against the full path.
type denyMatcher struct {
	fnmatch    *regexp.Regexp
	doubleStar *regexp.Regexp // nil unless the pattern contains "**"
}

func (p *Policy) compile() {
	p.once.Do(func() {
		for _, pat := range p.DenyPatterns {
			fn, err := fnmatchToRegexp(pat)
			if err != nil {
				continue
			}
			dm := denyMatcher{fnmatch: fn}
			if strings.Contains(pat, "**") {
				if ds, err := doubleStarToRegexp(pat); err == nil {
					dm.doubleStar = ds
				}
			}
			p.compiled = append(p.compiled, dm)
		}
	})
}

// PathDenied reports whether path matches any configured deny pattern,
// checked against both the full path and its basename.
func (p *Policy) PathDenied(path string) bool {
	p.compile()
	clean := filepath.ToSlash(path)
	base := pathpkg.Base(clean)
	for _, dm := range p.compiled {
		if dm.fnmatch.MatchString(clean) || dm.fnmatch.MatchString(base) {
			return true
		}
		if dm.doubleStar != nil && dm.doubleStar.MatchString(clean) {
			return true
		}
	}
	return false
}

// fnmatchToRegexp translates a shell glob into a fully anchored regexp with
// fnmatch semantics: "*" matches any run of characters, including "/".
func fnmatchToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '^', '$', '|', '[', ']', '{', '}', '\\':
			b.WriteString(regexp.QuoteMeta(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// doubleStarToRegexp reproduces the "**" in pattern fallback: "**" becomes
// ".*", any remaining "*" becomes "[^/]*", and the result is matched as a
// prefix (unanchored at the end) against the full path.
func doubleStarToRegexp(pattern string) (*regexp.Regexp, error) {
	replaced := strings.ReplaceAll(pattern, "**", "\x00")
	replaced = strings.ReplaceAll(replaced, "*", "[^/]*")
	replaced = strings.ReplaceAll(replaced, "\x00", ".*")
	return regexp.Compile("^" + replaced)
}
