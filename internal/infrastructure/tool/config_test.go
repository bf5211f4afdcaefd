package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
)

func TestModifyConfigTool_YAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "train.yaml")
	os.WriteFile(path, []byte("optimizer:\n  learning_rate: 0.01\n  name: adam\n"), 0o644)

	var changes []ChangeRecord
	tool := NewModifyConfigTool(dir, &domaintool.Policy{}, func(c ChangeRecord) { changes = append(changes, c) })

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "train.yaml", "key": "optimizer.learning_rate", "value": "0.001",
	})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if len(changes) != 1 || changes[0].Key != "optimizer.learning_rate" {
		t.Fatalf("expected one recorded change, got %+v", changes)
	}

	raw, _ := os.ReadFile(path)
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("rewritten file is not valid yaml: %v", err)
	}
	opt := doc["optimizer"].(map[string]interface{})
	if opt["learning_rate"] != 0.001 {
		t.Fatalf("expected learning_rate=0.001, got %v", opt["learning_rate"])
	}
	if opt["name"] != "adam" {
		t.Fatalf("expected unrelated key preserved, got %v", opt["name"])
	}
}

func TestModifyConfigTool_MissingKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	os.WriteFile(path, []byte(`{"a": 1}`), 0o644)

	tool := NewModifyConfigTool(dir, &domaintool.Policy{}, nil)
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "c.json", "key": "b", "value": "2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected missing key to fail")
	}
}

func TestModifyConfigTool_TOMLIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.toml")
	os.WriteFile(path, []byte("lr = 0.01\n"), 0o644)

	tool := NewModifyConfigTool(dir, &domaintool.Policy{}, nil)
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "c.toml", "key": "lr", "value": "0.02",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected TOML write to be refused")
	}
	if !contains(res.Error, "read-only") {
		t.Fatalf("expected read-only error, got %q", res.Error)
	}
}

func TestModifyConfigTool_DeniedPathMakesNoChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.yaml")
	original := []byte("key: value\n")
	os.WriteFile(path, original, 0o644)

	tool := NewModifyConfigTool(dir, &domaintool.Policy{DenyPatterns: []string{"secret.yaml"}}, nil)
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "secret.yaml", "key": "key", "value": "other",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected denied path to fail")
	}
	after, _ := os.ReadFile(path)
	if string(after) != string(original) {
		t.Fatal("expected denied path to make no file-system change")
	}
}
