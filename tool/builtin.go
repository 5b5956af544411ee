package tool

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/internal/util"
)

// maxReadBytes caps read_file output so a single tool result cannot blow up
// the provider context window.
const maxReadBytes = 128 * 1024

const defaultSearchResults = 50

type readFileArgs struct {
	Path string `json:"path" description:"Workspace-relative path of the file to read"`
}

type listFilesArgs struct {
	Directory string `json:"directory" description:"Workspace-relative directory to list"`
	Pattern   string `json:"pattern,omitempty" description:"Glob pattern matched against file names, e.g. *.go"`
}

type searchCodeArgs struct {
	Query      string `json:"query" description:"Substring to search for"`
	Directory  string `json:"directory,omitempty" description:"Workspace-relative directory to search, defaults to the workspace root"`
	MaxResults int    `json:"max_results,omitempty" description:"Maximum number of matching lines to return"`
}

type proposeEditArgs struct {
	Path       string `json:"path" description:"Workspace-relative path of the file to edit"`
	StartLine  int    `json:"start_line" description:"First line of the range to replace (1-based, inclusive)"`
	EndLine    int    `json:"end_line" description:"Last line of the range to replace (inclusive)"`
	NewContent string `json:"new_content" description:"Replacement text for the range"`
}

// DefaultTools returns the built-in coding tools, all confined to the given
// sandbox. Results are plain text; propose_edit emits a unified diff and
// never writes to disk.
func DefaultTools(sb *Sandbox) []Tool {
	return []Tool{
		{
			Def: core.ToolDef{
				Name:        "read_file",
				Description: "Read the contents of a file in the workspace",
				Parameters:  util.CreateSchema(readFileArgs{}),
			},
			Fn: func(args map[string]any) (string, error) { return readFile(sb, args) },
		},
		{
			Def: core.ToolDef{
				Name:        "list_files",
				Description: "Recursively list files under a directory, optionally filtered by a file name glob pattern",
				Parameters:  util.CreateSchema(listFilesArgs{}),
			},
			Fn: func(args map[string]any) (string, error) { return listFiles(sb, args) },
		},
		{
			Def: core.ToolDef{
				Name:        "search_code",
				Description: "Search files under a directory for lines containing a query string",
				Parameters:  util.CreateSchema(searchCodeArgs{}),
			},
			Fn: func(args map[string]any) (string, error) { return searchCode(sb, args) },
		},
		{
			Def: core.ToolDef{
				Name:        "propose_edit",
				Description: "Propose replacing a line range of a file with new content; returns a unified diff without modifying the file",
				Parameters:  util.CreateSchema(proposeEditArgs{}),
			},
			Fn: func(args map[string]any) (string, error) { return proposeEdit(sb, args) },
		},
	}
}

// DefaultToolDefs returns just the definitions of the built-in tools, for
// callers that supply their own executor wiring.
func DefaultToolDefs() []core.ToolDef {
	tools := DefaultTools(&Sandbox{Root: "."})
	defs := make([]core.ToolDef, len(tools))
	for i, t := range tools {
		defs[i] = t.Def
	}
	return defs
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func readFile(sb *Sandbox, args map[string]any) (string, error) {
	path, err := sb.Resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n... (truncated)", nil
	}
	return string(data), nil
}

func listFiles(sb *Sandbox, args map[string]any) (string, error) {
	dir, err := sb.Resolve(stringArg(args, "directory"))
	if err != nil {
		return "", err
	}
	pattern := stringArg(args, "pattern")
	if pattern == "" {
		pattern = "*"
	}
	var items []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil || d.IsDir() {
			return werr
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			rel, rerr := filepath.Rel(dir, path)
			if rerr != nil {
				rel = path
			}
			items = append(items, rel)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(items, "\n"), nil
}

func searchCode(sb *Sandbox, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "", fmt.Errorf("empty query")
	}
	dirArg := stringArg(args, "directory")
	if dirArg == "" {
		dirArg = "."
	}
	dir, err := sb.Resolve(dirArg)
	if err != nil {
		return "", err
	}
	maxResults := intArg(args, "max_results", defaultSearchResults)
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}

	var results []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil || d.IsDir() {
			return werr
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil // unreadable files are skipped, not fatal
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			rel = path
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				results = append(results, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(results) >= maxResults {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.Join(results, "\n"), nil
}

func proposeEdit(sb *Sandbox, args map[string]any) (string, error) {
	relPath := stringArg(args, "path")
	path, err := sb.Resolve(relPath)
	if err != nil {
		return "", err
	}
	start := intArg(args, "start_line", 0)
	end := intArg(args, "end_line", 0)
	newContent, _ := args["new_content"].(string)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")
	if start < 1 || end < start || end > len(lines)+1 {
		return "", fmt.Errorf("line range [%d, %d] out of bounds", start, end)
	}
	if end > len(lines) {
		end = len(lines)
	}

	newLines := []string{}
	if newContent != "" {
		newLines = strings.Split(newContent, "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", relPath)
	fmt.Fprintf(&b, "+++ b/%s\n", relPath)
	fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", start, end-start+1, start, len(newLines))
	for _, l := range lines[start-1 : end] {
		b.WriteString("-" + l + "\n")
	}
	for _, l := range newLines {
		b.WriteString("+" + l + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
