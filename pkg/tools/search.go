package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxSearchResults caps how many matches GrepTool/GlobTool return, so
// a broad pattern against a large tree can't exhaust agent context.
const DefaultMaxSearchResults = 200

// GlobTool lists files under a root matching a doublestar glob pattern.
type GlobTool struct {
	Root string
}

func NewGlobTool(root string) *GlobTool { return &GlobTool{Root: root} }

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files matching a glob pattern (supports ** for recursive match)." }

func (t *GlobTool) Schema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Property{
			"pattern": {Type: "string", Description: "doublestar glob pattern, e.g. \"**/*.go\""},
		},
		Required: []string{"pattern"},
	}
}

func (t *GlobTool) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	pattern, _ := inputs["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}

	fsys := os.DirFS(t.Root)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}

	truncated := len(matches) > DefaultMaxSearchResults
	if truncated {
		matches = matches[:DefaultMaxSearchResults]
	}

	return map[string]any{
		"matches":   matches,
		"truncated": truncated,
	}, nil
}

// GrepTool searches file contents under a root for a regular expression,
// restricted to files matching an optional glob filter.
type GrepTool struct {
	Root string
}

func NewGrepTool(root string) *GrepTool { return &GrepTool{Root: root} }

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search file contents for a regular expression." }

func (t *GrepTool) Schema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Property{
			"pattern":    {Type: "string", Description: "regular expression to search for"},
			"glob":       {Type: "string", Description: "doublestar glob restricting which files are searched, e.g. \"**/*.go\""},
		},
		Required: []string{"pattern"},
	}
}

// GrepMatch is one matching line.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *GrepTool) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	pattern, _ := inputs["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	globPattern, _ := inputs["glob"].(string)
	if globPattern == "" {
		globPattern = "**/*"
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	fsys := os.DirFS(t.Root)
	candidates, err := doublestar.Glob(fsys, globPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob filter: %w", err)
	}

	var matches []GrepMatch
	truncated := false
	for _, rel := range candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(matches) >= DefaultMaxSearchResults {
			truncated = true
			break
		}
		full := filepath.Join(t.Root, rel)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		found, hitBudget := grepFile(full, rel, re, DefaultMaxSearchResults-len(matches))
		matches = append(matches, found...)
		if hitBudget {
			truncated = true
		}
	}

	return map[string]any{
		"matches":   matches,
		"truncated": truncated,
	}, nil
}

// grepFile scans fullPath for lines matching re, collecting at most budget
// matches. hitBudget reports whether the scan stopped because budget was
// reached rather than because the file was exhausted, meaning further
// matches may have been left unscanned.
func grepFile(fullPath, relPath string, re *regexp.Regexp, budget int) (matches []GrepMatch, hitBudget bool) {
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var out []GrepMatch
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		if len(out) >= budget {
			return out, true
		}
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			out = append(out, GrepMatch{Path: relPath, Line: lineNum, Text: line})
		}
	}
	return out, false
}
