package usage

import (
	"os"
	"path/filepath"
	"strings"
)

// DataRoot resolves the data directory. An explicit override wins, then the
// CLAUDE_CONFIG_DIR environment variable, then ~/.claude.
func DataRoot(override string) string {
	if override != "" {
		return override
	}
	if env := os.Getenv("CLAUDE_CONFIG_DIR"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude"
	}
	return filepath.Join(home, ".claude")
}

// ProjectsDir is the session log directory under the data root.
func ProjectsDir(root string) string {
	return filepath.Join(root, "projects")
}

// DecodeProjectPath turns an on-disk directory name back into a path.
// Double dashes mark a drive letter separator, single dashes a path
// separator.
func DecodeProjectPath(encoded string) string {
	decoded := strings.ReplaceAll(encoded, "--", ":\\")
	return strings.ReplaceAll(decoded, "-", "\\")
}

// DisplayName is the last component of a decoded project path.
func DisplayName(projectPath string) string {
	trimmed := strings.TrimRight(projectPath, "\\/")
	if trimmed == "" {
		return projectPath
	}
	if i := strings.LastIndexAny(trimmed, "\\/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
