// Package tool implements the fixed tool vocabulary the agent loop drives:
// read-file, list-directory, search-codebase, find-definition,
// get-training-logs, modify-config, set-next-command, request-code-change.
package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
)

const maxListEntries = 500

// ReadFileTool reads a repository-relative file, optionally sliced to a
// line range, refusing any path the deny policy matches.
type ReadFileTool struct {
	repoRoot string
	policy   *domaintool.Policy
}

func NewReadFileTool(repoRoot string, policy *domaintool.Policy) *ReadFileTool {
	return &ReadFileTool{repoRoot: repoRoot, policy: policy}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *ReadFileTool) Description() string {
	return "Read a file's contents, optionally restricted to a line range."
}

func (t *ReadFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string", "description": "repository-relative file path"},
			"start_line": map[string]interface{}{"type": "integer", "description": "1-indexed inclusive start"},
			"end_line":   map[string]interface{}{"type": "integer", "description": "1-indexed inclusive end"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return &domaintool.Result{Success: false, Error: "path is required"}, nil
	}
	if t.policy.PathDenied(path) {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("access denied: %s", path)}, nil
	}

	full := filepath.Join(t.repoRoot, path)
	data, err := os.ReadFile(full)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	start, hasStart := intArg(args, "start_line")
	end, hasEnd := intArg(args, "end_line")
	if !hasStart && !hasEnd {
		return &domaintool.Result{Output: string(data), Success: true}, nil
	}

	lines := strings.Split(string(data), "\n")
	if !hasStart {
		start = 1
	}
	if !hasEnd || end > len(lines) {
		end = len(lines)
	}
	if start < 1 {
		start = 1
	}

	var b strings.Builder
	for i := start; i <= end && i <= len(lines); i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i, lines[i-1])
	}
	return &domaintool.Result{Output: b.String(), Success: true}, nil
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// ListDirectoryTool lists a directory's entries, denying matches in the
// deny policy and suffixing directories with "/".
type ListDirectoryTool struct {
	repoRoot string
	policy   *domaintool.Policy
}

func NewListDirectoryTool(repoRoot string, policy *domaintool.Policy) *ListDirectoryTool {
	return &ListDirectoryTool{repoRoot: repoRoot, policy: policy}
}

func (t *ListDirectoryTool) Name() string         { return "list_directory" }
func (t *ListDirectoryTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *ListDirectoryTool) Description() string {
	return "List a directory's entries, optionally recursively, capped at 500 entries."
}

func (t *ListDirectoryTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":      map[string]interface{}{"type": "string", "description": "repository-relative directory path"},
			"recursive": map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	relPath, _ := args["path"].(string)
	if relPath == "" {
		relPath = "."
	}
	if t.policy.PathDenied(relPath) {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("access denied: %s", relPath)}, nil
	}
	recursive, _ := args["recursive"].(bool)

	root := filepath.Join(t.repoRoot, relPath)
	var entries []string

	if recursive {
		err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil || p == root {
				return nil
			}
			rel, _ := filepath.Rel(t.repoRoot, p)
			if t.policy.PathDenied(rel) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				entries = append(entries, rel+"/")
			} else {
				entries = append(entries, rel)
			}
			if len(entries) >= maxListEntries {
				return fmt.Errorf("stop")
			}
			return nil
		})
		_ = err
	} else {
		dirents, err := os.ReadDir(root)
		if err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		for _, e := range dirents {
			rel := filepath.Join(relPath, e.Name())
			if t.policy.PathDenied(rel) {
				continue
			}
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			entries = append(entries, name)
			if len(entries) >= maxListEntries {
				break
			}
		}
	}

	sort.Strings(entries)
	if len(entries) > maxListEntries {
		entries = entries[:maxListEntries]
	}
	return &domaintool.Result{Output: strings.Join(entries, "\n"), Success: true}, nil
}
