package confkit

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce fills the environment from .env files the first time it is
// called; later calls do nothing.
//
//   - POP_NO_DOTENV=1 skips loading.
//   - POP_ENV_FILE names the only file to read.
//   - Otherwise every .env from this package up to the module root is read,
//     nearest first, so a closer file wins for keys set in both.
//
// Variables already present in the process are kept unless
// POP_DOTENV_OVERLOAD=1.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("POP_NO_DOTENV") == "1" {
		return
	}
	apply := godotenv.Load
	if os.Getenv("POP_DOTENV_OVERLOAD") == "1" {
		apply = godotenv.Overload
	}

	if file := os.Getenv("POP_ENV_FILE"); file != "" {
		_ = apply(file)
		return
	}
	for _, file := range dotenvCandidates() {
		_ = apply(file)
	}
}

// dotenvCandidates lists .env paths from the source directory upwards,
// stopping at the module root. Only existing files are returned.
func dotenvCandidates() []string {
	_, src, _, ok := runtime.Caller(0)
	if !ok {
		return []string{".env"}
	}
	var out []string
	dir := filepath.Dir(src)
	for i := 0; i < maxRootDepth; i++ {
		if p := filepath.Join(dir, ".env"); exists(p) {
			out = append(out, p)
		}
		parent := filepath.Dir(dir)
		if isProjectRoot(dir) || parent == dir {
			break
		}
		dir = parent
	}
	return out
}
