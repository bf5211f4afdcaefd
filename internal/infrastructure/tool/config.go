package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
)

// ChangeRecord is one mutation an agent iteration made, surfaced to the
// orchestrator for commit messages and the decisions trail.
type ChangeRecord struct {
	Path     string
	Key      string
	OldValue string
	NewValue string
}

// ModifyConfigTool walks a dotted key path in a YAML/JSON config file
// (format inferred from extension) and coerces the incoming string to the
// existing scalar's type before writing the file back. TOML is read-only.
type ModifyConfigTool struct {
	repoRoot string
	policy   *domaintool.Policy
	record   func(ChangeRecord)
}

func NewModifyConfigTool(repoRoot string, policy *domaintool.Policy, record func(ChangeRecord)) *ModifyConfigTool {
	return &ModifyConfigTool{repoRoot: repoRoot, policy: policy, record: record}
}

func (t *ModifyConfigTool) Name() string         { return "modify_config" }
func (t *ModifyConfigTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *ModifyConfigTool) Description() string {
	return "Modify an existing key in a YAML or JSON config file, preserving its scalar type. TOML files are read-only."
}

func (t *ModifyConfigTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":  map[string]interface{}{"type": "string", "description": "repository-relative config file path"},
			"key":   map[string]interface{}{"type": "string", "description": "dotted key path, e.g. optimizer.learning_rate"},
			"value": map[string]interface{}{"type": "string", "description": "new value as a string; coerced to the existing scalar's type"},
		},
		"required": []string{"path", "key", "value"},
	}
}

func (t *ModifyConfigTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	path, _ := args["path"].(string)
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	if path == "" || key == "" {
		return &domaintool.Result{Success: false, Error: "path and key are required"}, nil
	}
	if t.policy.PathDenied(path) {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("access denied: %s", path)}, nil
	}

	full := filepath.Join(t.repoRoot, path)
	raw, err := os.ReadFile(full)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".toml" {
		var tomlDoc map[string]interface{}
		if err := toml.Unmarshal(raw, &tomlDoc); err != nil {
			return &domaintool.Result{Success: false, Error: fmt.Sprintf("parse %s: %v", path, err)}, nil
		}
		if parent, leaf, perr := walkToParent(tomlDoc, strings.Split(key, ".")); perr == nil {
			if existing, ok := parent[leaf]; ok {
				return &domaintool.Result{Success: false, Error: fmt.Sprintf(
					"TOML config files are read-only; %s is currently %v", key, existing)}, nil
			}
		}
		return &domaintool.Result{Success: false, Error: "TOML config files are read-only"}, nil
	}

	var doc map[string]interface{}
	switch ext {
	case ".json":
		err = json.Unmarshal(raw, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &doc)
	default:
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("unsupported config format: %s", ext)}, nil
	}
	if err != nil {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("parse %s: %v", path, err)}, nil
	}

	segments := strings.Split(key, ".")
	parent, leaf, err := walkToParent(doc, segments)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	existing, ok := parent[leaf]
	if !ok {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("key %q does not exist", key)}, nil
	}

	coerced, err := coerce(existing, value)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	parent[leaf] = coerced

	var out []byte
	switch ext {
	case ".json":
		out, err = json.MarshalIndent(doc, "", "  ")
	case ".yaml", ".yml":
		out, err = yaml.Marshal(doc)
	}
	if err != nil {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("marshal %s: %v", path, err)}, nil
	}
	if err := os.WriteFile(full, out, 0o644); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	oldStr := fmt.Sprintf("%v", existing)
	newStr := fmt.Sprintf("%v", coerced)
	if t.record != nil {
		t.record(ChangeRecord{Path: path, Key: key, OldValue: oldStr, NewValue: newStr})
	}

	return &domaintool.Result{
		Output:  fmt.Sprintf("%s: %s -> %s", key, oldStr, newStr),
		Success: true,
	}, nil
}

func walkToParent(doc map[string]interface{}, segments []string) (map[string]interface{}, string, error) {
	cur := doc
	for i, seg := range segments[:len(segments)-1] {
		next, ok := cur[seg]
		if !ok {
			return nil, "", fmt.Errorf("key path segment %q does not exist", strings.Join(segments[:i+1], "."))
		}
		m, ok := next.(map[string]interface{})
		if !ok {
			return nil, "", fmt.Errorf("key path segment %q is not a mapping", strings.Join(segments[:i+1], "."))
		}
		cur = m
	}
	return cur, segments[len(segments)-1], nil
}

// coerce converts value (always a string from the model) to the type of
// existing, matching bool/int/float/list/dict/string targets.
func coerce(existing interface{}, value string) (interface{}, error) {
	switch e := existing.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a valid bool", value)
		}
		return b, nil

	case int, int64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a valid integer", value)
		}
		return int64(math.Trunc(f)), nil

	case float64, float32:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a valid number", value)
		}
		return f, nil

	case []interface{}:
		var list []interface{}
		if err := json.Unmarshal([]byte(value), &list); err != nil {
			return nil, fmt.Errorf("value %q is not a valid JSON list: %w", value, err)
		}
		return list, nil

	case map[string]interface{}:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			return nil, fmt.Errorf("value %q is not a valid JSON object: %w", value, err)
		}
		return m, nil

	default:
		_ = e
		return value, nil
	}
}
