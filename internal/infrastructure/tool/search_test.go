package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
)

func TestSearchCodebaseTool_FindsMatches(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc Foo() {}\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "other.go"), []byte("package main\n\nfunc Bar() {}\n"), 0o644)

	tool := NewSearchCodebaseTool(dir, &domaintool.Policy{})
	res, err := tool.Execute(context.Background(), map[string]interface{}{"pattern": "func Foo"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if !contains(res.Output, "main.go:3:") {
		t.Fatalf("expected match in main.go, got %q", res.Output)
	}
	if contains(res.Output, "other.go") {
		t.Fatalf("did not expect match in other.go, got %q", res.Output)
	}
}

func TestSearchCodebaseTool_InvalidPattern(t *testing.T) {
	dir := t.TempDir()
	tool := NewSearchCodebaseTool(dir, &domaintool.Policy{})
	res, err := tool.Execute(context.Background(), map[string]interface{}{"pattern": "("})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected invalid regex to fail")
	}
}

func TestFindDefinitionTool_LocatesGoFunc(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "service.go"), []byte("package svc\n\nfunc ComputeLoss(x float64) float64 {\n\treturn x\n}\n"), 0o644)

	tool := NewFindDefinitionTool(dir, &domaintool.Policy{})
	res, err := tool.Execute(context.Background(), map[string]interface{}{"symbol": "ComputeLoss", "file_pattern": "*.go"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if !contains(res.Output, "service.go:3:") {
		t.Fatalf("expected definition match, got %q", res.Output)
	}
}

func TestFindDefinitionTool_NoMatch(t *testing.T) {
	dir := t.TempDir()
	tool := NewFindDefinitionTool(dir, &domaintool.Policy{})
	res, err := tool.Execute(context.Background(), map[string]interface{}{"symbol": "DoesNotExist"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if !contains(res.Output, "no definition found") {
		t.Fatalf("expected no-match message, got %q", res.Output)
	}
}
