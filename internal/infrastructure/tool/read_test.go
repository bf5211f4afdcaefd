package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
)

func TestReadFileTool_FullAndRange(t *testing.T) {
	dir := t.TempDir()
	content := "line1\nline2\nline3\n"
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(dir, &domaintool.Policy{})

	res, err := tool.Execute(context.Background(), map[string]interface{}{"path": "a.txt"})
	if err != nil || !res.Success || res.Output != content {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}

	res, err = tool.Execute(context.Background(), map[string]interface{}{
		"path": "a.txt", "start_line": float64(2), "end_line": float64(2),
	})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if res.Output != "     2\tline2\n" {
		t.Fatalf("unexpected ranged output: %q", res.Output)
	}
}

func TestReadFileTool_DeniedPath(t *testing.T) {
	dir := t.TempDir()
	tool := NewReadFileTool(dir, &domaintool.Policy{DenyPatterns: []string{".env"}})
	res, err := tool.Execute(context.Background(), map[string]interface{}{"path": ".env"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected access denied")
	}
}

func TestListDirectoryTool(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("y"), 0o644)

	tool := NewListDirectoryTool(dir, &domaintool.Policy{})

	res, err := tool.Execute(context.Background(), map[string]interface{}{"path": "."})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if !contains(res.Output, "a.txt") || !contains(res.Output, "sub/") {
		t.Fatalf("unexpected listing: %q", res.Output)
	}

	res, err = tool.Execute(context.Background(), map[string]interface{}{"path": ".", "recursive": true})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if !contains(res.Output, "sub/b.txt") {
		t.Fatalf("expected recursive listing to include nested file, got %q", res.Output)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
