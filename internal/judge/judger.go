package judge

import (
	"os/exec"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// StandardJudge implements the "standard" comparator: trims trailing
// whitespace on each line and on the full text, splits on LF, and
// requires matching line counts with each corresponding line equal after
// a right-trim.
func StandardJudge(got, expected string) Status {
	gotLines := strings.Split(strings.TrimRight(got, " \t\r\n"), "\n")
	expLines := strings.Split(strings.TrimRight(expected, " \t\r\n"), "\n")
	if len(gotLines) != len(expLines) {
		return StatusWrongAnswer
	}
	for i := range gotLines {
		if strings.TrimRight(gotLines[i], " \t\r") != strings.TrimRight(expLines[i], " \t\r") {
			return StatusWrongAnswer
		}
	}
	return StatusAccepted
}

// StrictJudge requires byte-for-byte equality.
func StrictJudge(got, expected string) Status {
	if got == expected {
		return StatusAccepted
	}
	return StatusWrongAnswer
}

// SpecialJudger decides accept/reject for cases of a special_judge
// problem. Implementations must be safe to Clone for reuse across
// sequential case runs within a job.
type SpecialJudger interface {
	// Judge compares the program's output against the expected answer,
	// writing scratch files under tempDir if needed. The returned Info
	// string is stored verbatim into JobCase.Info.
	Judge(got, expected, tempDir string) (Status, string)
	Clone() (SpecialJudger, error)
	Dispose()
}

// ExternalJudger spawns an external process whose argv template contains
// %OUTPUT% and %ANSWER% placeholders, substituted with the produced
// output and the expected answer (each written to a scratch file first).
// Stdout must be exactly two non-empty lines: line 1 is a Status Ident,
// line 2 is a free-form info message. Any deviation is StatusSPJError.
type ExternalJudger struct {
	argvTemplate []string
}

func NewExternalJudger(argv []string) *ExternalJudger {
	return &ExternalJudger{argvTemplate: argv}
}

func (j *ExternalJudger) Judge(got, expected, tempDir string) (Status, string) {
	gotFile, err := writeScratchFile(tempDir, "spj_got_", got)
	if err != nil {
		return StatusSystemError, ""
	}
	expFile, err := writeScratchFile(tempDir, "spj_ans_", expected)
	if err != nil {
		return StatusSystemError, ""
	}

	argv := make([]string, len(j.argvTemplate))
	for i, tok := range j.argvTemplate {
		tok = strings.ReplaceAll(tok, "%OUTPUT%", gotFile)
		tok = strings.ReplaceAll(tok, "%ANSWER%", expFile)
		argv[i] = tok
	}
	if len(argv) == 0 {
		return StatusSystemError, ""
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	out, err := cmd.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return StatusSystemError, ""
		}
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	nonEmpty := make([]string, 0, 2)
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) != 2 {
		return StatusSPJError, ""
	}
	status, ok := fromIdent(strings.TrimSpace(nonEmpty[0]))
	if !ok {
		return StatusSPJError, ""
	}
	return status, nonEmpty[1]
}

func (j *ExternalJudger) Clone() (SpecialJudger, error) {
	return &ExternalJudger{argvTemplate: j.argvTemplate}, nil
}

func (j *ExternalJudger) Dispose() {}

// LuaJudger runs a problem-supplied Lua script in an embedded interpreter.
// Before execution it binds the OUTPUT_TEXT/ANSWER_TEXT (contents, not
// paths) and TEMP_DIR globals, and every Status constant by its
// upper-cased Ident. The script must set a global RESULT to one of those
// constants, and may set INFO as a free string.
type LuaJudger struct {
	script string
	state  *lua.LState
}

func NewLuaJudger(script string) (*LuaJudger, error) {
	j := &LuaJudger{script: script, state: lua.NewState(lua.Options{SkipOpenLibs: true})}
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
	} {
		if err := j.state.CallByParam(lua.P{
			Fn:      j.state.NewFunction(pair.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(pair.name)); err != nil {
			return nil, err
		}
	}
	for s := Status(0); s <= statusMax; s++ {
		j.state.SetGlobal(strings.ToUpper(s.Ident()), lua.LNumber(s))
	}
	return j, nil
}

func (j *LuaJudger) Judge(got, expected, tempDir string) (Status, string) {
	j.state.SetGlobal("OUTPUT_TEXT", lua.LString(got))
	j.state.SetGlobal("ANSWER_TEXT", lua.LString(expected))
	j.state.SetGlobal("TEMP_DIR", lua.LString(tempDir))
	j.state.SetGlobal("RESULT", lua.LNil)
	j.state.SetGlobal("INFO", lua.LString(""))
	if err := j.state.DoString(j.script); err != nil {
		return StatusSystemError, ""
	}
	result, ok := j.state.GetGlobal("RESULT").(lua.LNumber)
	if !ok {
		return StatusSPJError, ""
	}
	info := lua.LVAsString(j.state.GetGlobal("INFO"))
	return Status(result), info
}

func (j *LuaJudger) Clone() (SpecialJudger, error) {
	return NewLuaJudger(j.script)
}

func (j *LuaJudger) Dispose() {
	j.state.Close()
}
