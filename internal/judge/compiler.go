package judge

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Compiler invokes a language's configured command, substituting %INPUT%
// and %OUTPUT% per-token (the config already supplies a tokenized argv,
// so no shell-string templating or re-splitting is needed).
type Compiler struct {
	lang Language
}

func NewCompiler(lang Language) *Compiler {
	return &Compiler{lang: lang}
}

// Compile writes source into tempDir, runs the compile command, and
// returns (StatusCompilationSuccess, executable path) on success or
// (StatusCompilationError, combined stdout+stderr) on a non-zero exit.
// A StatusSystemError return means the judging system itself failed.
func (c *Compiler) Compile(sourceCode, tempDir string) (Status, string) {
	sourcePath := filepath.Join(tempDir, c.lang.FileName)
	if err := os.WriteFile(sourcePath, []byte(sourceCode), 0o644); err != nil {
		return StatusSystemError, ""
	}
	outputPath := filepath.Join(tempDir, "exe_"+uuid.NewString()[:8])

	if len(c.lang.Command) == 0 {
		return StatusSystemError, ""
	}
	argv := make([]string, len(c.lang.Command))
	for i, tok := range c.lang.Command {
		tok = strings.ReplaceAll(tok, "%INPUT%", sourcePath)
		tok = strings.ReplaceAll(tok, "%OUTPUT%", outputPath)
		argv[i] = tok
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = tempDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return StatusCompilationError, string(output)
		}
		return StatusSystemError, ""
	}
	return StatusCompilationSuccess, outputPath
}
