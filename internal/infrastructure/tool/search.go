package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
)

const (
	maxSearchMatches = 50
	maxSearchFileSize = 2 << 20 // 2 MiB, skip anything larger as probably not source
)

var skipDirs = map[string]bool{
	".git": true, ".revis": true, "node_modules": true, ".venv": true,
	"venv": true, "__pycache__": true, "dist": true, "build": true,
}

// SearchCodebaseTool runs a regular expression over tracked text files,
// returning matching lines with their file and line number.
type SearchCodebaseTool struct {
	repoRoot string
	policy   *domaintool.Policy
}

func NewSearchCodebaseTool(repoRoot string, policy *domaintool.Policy) *SearchCodebaseTool {
	return &SearchCodebaseTool{repoRoot: repoRoot, policy: policy}
}

func (t *SearchCodebaseTool) Name() string         { return "search_codebase" }
func (t *SearchCodebaseTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *SearchCodebaseTool) Description() string {
	return "Search repository files for a regular expression, returning matching lines."
}

func (t *SearchCodebaseTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern":      map[string]interface{}{"type": "string", "description": "regular expression (RE2 syntax)"},
			"path":         map[string]interface{}{"type": "string", "description": "subdirectory to restrict the search to, default repository root"},
			"file_pattern": map[string]interface{}{"type": "string", "description": "only search files whose name matches this glob pattern (e.g. '*.py')"},
		},
		"required": []string{"pattern"},
	}
}

func (t *SearchCodebaseTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return &domaintool.Result{Success: false, Error: "pattern is required"}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("invalid pattern: %v", err)}, nil
	}
	filePattern, _ := args["file_pattern"].(string)

	subdir, _ := args["path"].(string)
	if t.policy.PathDenied(subdir) {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("access denied: %s", subdir)}, nil
	}
	root := filepath.Join(t.repoRoot, subdir)

	var matches []string
	err = filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(t.repoRoot, p)
		if relErr != nil {
			return nil
		}
		if info.IsDir() {
			if skipDirs[info.Name()] || t.policy.PathDenied(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if t.policy.PathDenied(rel) || info.Size() > maxSearchFileSize {
			return nil
		}
		if !matchesFilePattern(info.Name(), filePattern) {
			return nil
		}
		grepFile(p, rel, re, &matches)
		if len(matches) >= maxSearchMatches {
			return errStopWalk
		}
		return nil
	})
	if err != nil && err != errStopWalk {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	if len(matches) == 0 {
		return &domaintool.Result{Output: "no matches", Success: true}, nil
	}
	if len(matches) > maxSearchMatches {
		matches = matches[:maxSearchMatches]
	}
	return &domaintool.Result{Output: strings.Join(matches, "\n"), Success: true}, nil
}

// matchesFilePattern reports whether name satisfies an optional glob filter;
// an empty pattern matches everything.
func matchesFilePattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

var errStopWalk = fmt.Errorf("search: match cap reached")

func grepFile(fullPath, relPath string, re *regexp.Regexp, matches *[]string) {
	f, err := os.Open(fullPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			*matches = append(*matches, fmt.Sprintf("%s:%d:%s", relPath, lineNum, line))
			if len(*matches) >= maxSearchMatches {
				return
			}
		}
	}
}

// FindDefinitionTool locates the likely definition site of a symbol using
// language-agnostic heuristic patterns (func/type/class/def/const/var),
// rather than a full language server.
type FindDefinitionTool struct {
	repoRoot string
	policy   *domaintool.Policy
}

func NewFindDefinitionTool(repoRoot string, policy *domaintool.Policy) *FindDefinitionTool {
	return &FindDefinitionTool{repoRoot: repoRoot, policy: policy}
}

func (t *FindDefinitionTool) Name() string         { return "find_definition" }
func (t *FindDefinitionTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *FindDefinitionTool) Description() string {
	return "Find likely definition sites for a symbol name across the repository."
}

func (t *FindDefinitionTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"symbol":       map[string]interface{}{"type": "string", "description": "identifier to find the definition of"},
			"file_pattern": map[string]interface{}{"type": "string", "description": "restrict the search to files whose name matches this glob pattern, default '*.py'"},
		},
		"required": []string{"symbol"},
	}
}

const defaultDefinitionFilePattern = "*.py"

var definitionPrefixes = []string{
	`func\s+(?:\([^)]*\)\s*)?`, // Go method or function
	`type\s+`,                  // Go type
	`class\s+`,                 // Python/JS class
	`def\s+`,                   // Python function
	`const\s+`,
	`var\s+`,
	`function\s+`, // JS/TS function
	`interface\s+`,
	`struct\s+`,
}

func (t *FindDefinitionTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		return &domaintool.Result{Success: false, Error: "symbol is required"}, nil
	}
	filePattern, _ := args["file_pattern"].(string)
	if filePattern == "" {
		filePattern = defaultDefinitionFilePattern
	}

	var alternatives []string
	for _, prefix := range definitionPrefixes {
		alternatives = append(alternatives, prefix+regexp.QuoteMeta(symbol)+`\b`)
	}
	re, err := regexp.Compile(strings.Join(alternatives, "|"))
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	var matches []string
	err = filepath.Walk(t.repoRoot, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(t.repoRoot, p)
		if relErr != nil {
			return nil
		}
		if info.IsDir() {
			if skipDirs[info.Name()] || t.policy.PathDenied(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if t.policy.PathDenied(rel) || info.Size() > maxSearchFileSize {
			return nil
		}
		if !matchesFilePattern(info.Name(), filePattern) {
			return nil
		}
		grepFile(p, rel, re, &matches)
		if len(matches) >= maxSearchMatches {
			return errStopWalk
		}
		return nil
	})
	if err != nil && err != errStopWalk {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	if len(matches) == 0 {
		return &domaintool.Result{Output: fmt.Sprintf("no definition found for %q", symbol), Success: true}, nil
	}
	return &domaintool.Result{Output: strings.Join(matches, "\n"), Success: true}, nil
}
