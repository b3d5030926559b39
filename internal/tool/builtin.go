package tool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Limits on what the built-in capabilities will return. Agents work on
// repository snapshots; unbounded reads would blow up transcripts.
const (
	maxReadBytes   = 256 * 1024
	maxGrepMatches = 200
	maxGrepFile    = 1024 * 1024
)

// Builtins returns the fixed capability set registered for every run,
// rooted at the project directory.
func Builtins(root string) []Tool {
	return []Tool{
		&readFileTool{root: root},
		&listDirTool{root: root},
		&grepTool{root: root},
	}
}

// resolve joins a relative path onto the root and rejects escapes.
func resolve(root, rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	path := filepath.Clean(filepath.Join(root, rel))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes project directory: %s", rel)
	}
	return path, nil
}

func stringArg(input map[string]interface{}, key string) (string, error) {
	value, ok := input[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}

type readFileTool struct {
	root string
}

func (t *readFileTool) Name() string { return "read_file" }

func (t *readFileTool) Run(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	rel, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}
	path, err := resolve(t.root, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", rel)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	truncated := false
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		truncated = true
	}

	return map[string]interface{}{
		"content":   string(data),
		"size":      info.Size(),
		"truncated": truncated,
	}, nil
}

type listDirTool struct {
	root string
}

func (t *listDirTool) Name() string { return "list_dir" }

func (t *listDirTool) Run(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	rel, _ := stringArg(input, "path")
	path, err := resolve(t.root, rel)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	listing := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		item := map[string]interface{}{
			"name": entry.Name(),
			"dir":  entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			item["size"] = info.Size()
		}
		listing = append(listing, item)
	}

	return map[string]interface{}{"entries": listing}, nil
}

type grepTool struct {
	root string
}

func (t *grepTool) Name() string { return "grep" }

func (t *grepTool) Run(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	pattern, err := stringArg(input, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	rel, _ := stringArg(input, "path")
	path, err := resolve(t.root, rel)
	if err != nil {
		return nil, err
	}

	var matches []interface{}
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable entry mid-walk is skipped; a bad root is
			// the caller's error, not an empty match set.
			if p == path {
				return err
			}
			return nil
		}
		if len(matches) >= maxGrepMatches {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != path {
				return filepath.SkipDir
			}
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxGrepFile {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		relPath, _ := filepath.Rel(t.root, p)
		for i, line := range strings.Split(string(data), "\n") {
			if len(matches) >= maxGrepMatches {
				break
			}
			if re.MatchString(line) {
				matches = append(matches, map[string]interface{}{
					"file": relPath,
					"line": i + 1,
					"text": strings.TrimSpace(line),
				})
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return nil, walkErr
	}

	return map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	}, nil
}
