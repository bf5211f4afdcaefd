package tool

import (
	"context"
	"testing"
)

func TestPolicy_PathDenied_DoubleStar(t *testing.T) {
	p := &Policy{DenyPatterns: []string{".git/**", ".revis/**", "**/.env"}}

	cases := map[string]bool{
		".git/config":      true,
		".git/refs/heads/x": true,
		".revis/store.db":  true,
		"nested/.env":       true,
		".env":              false, // "**/.env" requires a prefix segment
		"config.yaml":       false,
	}
	for path, want := range cases {
		if got := p.PathDenied(path); got != want {
			t.Errorf("PathDenied(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestPolicy_PathDenied_PlainGlobMatchesBasename(t *testing.T) {
	p := &Policy{DenyPatterns: []string{"*.pem"}}

	cases := map[string]bool{
		"id.pem":          true,
		"keys/id.pem":     true, // matched via basename, not just full-path
		"keys/sub/id.pem": true,
		"id.pub":          false,
	}
	for path, want := range cases {
		if got := p.PathDenied(path); got != want {
			t.Errorf("PathDenied(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestInMemoryRegistry(t *testing.T) {
	r := NewInMemoryRegistry()
	if err := r.Register(fakeTool{name: "read_file"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(fakeTool{name: "read_file"}); err == nil {
		t.Fatal("expected duplicate registration to error")
	}
	if _, ok := r.Get("read_file"); !ok {
		t.Fatal("expected read_file to be registered")
	}
	if len(r.List()) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(r.List()))
	}
}

type fakeTool struct{ name string }

func (f fakeTool) Name() string                       { return f.name }
func (f fakeTool) Description() string                { return "fake" }
func (f fakeTool) Kind() Kind                          { return KindRead }
func (f fakeTool) Schema() map[string]interface{}      { return map[string]interface{}{} }
func (f fakeTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	return &Result{Success: true}, nil
}
