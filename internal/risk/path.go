package risk

import (
	"path/filepath"
	"strings"
)

// isSafePath enforces sandboxing: path must resolve to somewhere under
// root. Grounded verbatim on engine.py's _is_safe_path
// (os.path.abspath(path).startswith(self.sandbox_root)).
func isSafePath(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absRoot = filepath.Clean(absRoot)
	absPath = filepath.Clean(absPath)
	if absPath == absRoot {
		return true
	}
	return strings.HasPrefix(absPath, absRoot+string(filepath.Separator))
}
