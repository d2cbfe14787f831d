package judge

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// writeScratchFile writes content to a freshly named file under dir,
// returning its path.
func writeScratchFile(dir, prefix, content string) (string, error) {
	p := filepath.Join(dir, prefix+uuid.NewString()[:8])
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// newJobTempDir creates a fresh scratch directory for one job under base.
func newJobTempDir(base string) (string, error) {
	dir := filepath.Join(base, "job_"+uuid.NewString()[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
