package judge

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// shLanguage "compiles" by copying the shell source to the executable
// path, so engine tests exercise the real compile/run/judge pipeline
// without a toolchain.
var shLanguage = Language{
	Name:     "sh",
	FileName: "main.sh",
	Command:  []string{"/bin/sh", "-c", "cp %INPUT% %OUTPUT% && chmod +x %OUTPUT%"},
}

func writeCaseFiles(t *testing.T, dir string, idx int, input, answer string) Case {
	t.Helper()
	in := filepath.Join(dir, "case"+string(rune('0'+idx))+".in")
	ans := filepath.Join(dir, "case"+string(rune('0'+idx))+".ans")
	if err := os.WriteFile(in, []byte(input), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ans, []byte(answer), 0o644); err != nil {
		t.Fatal(err)
	}
	return Case{Score: 0, InputFile: in, AnswerFile: ans}
}

func engineFixture(t *testing.T, problem Problem) (*Engine, func(string) *Task) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("sandbox requires linux ptrace")
	}
	catalog := &Catalog{
		Problems:  map[int32]Problem{problem.ID: problem},
		Languages: map[string]Language{"sh": shLanguage},
	}
	e := NewEngine(t.TempDir(), catalog)
	newTask := func(source string) *Task {
		job := NewJob(1, JobRequest{
			SourceCode: source,
			Language:   "sh",
			ProblemID:  problem.ID,
		}, len(problem.Cases))
		return &Task{job: job}
	}
	return e, newTask
}

// Scenario A: hello-world accept.
func TestEngineHelloWorldAccept(t *testing.T) {
	dir := t.TempDir()
	c := writeCaseFiles(t, dir, 1, "", "Hello\n")
	c.Score = 100
	problem := Problem{ID: 1, Type: ProblemStandard, Cases: []Case{c}}
	e, newTask := engineFixture(t, problem)

	task := newTask("#!/bin/sh\necho Hello\n")
	e.Run(task)

	job := task.SnapJob()
	if job.State != JobFinished || job.Result != StatusAccepted {
		t.Fatalf("job = %+v", job)
	}
	if job.Score != 100 {
		t.Fatalf("score = %f, want 100", job.Score)
	}
	if job.Cases[0].Result != StatusCompilationSuccess {
		t.Fatalf("compile slot = %v", job.Cases[0].Result)
	}
	if job.Cases[1].Result != StatusAccepted {
		t.Fatalf("case 1 = %v", job.Cases[1].Result)
	}
}

// Scenario B: compile error leaves every real case waiting.
func TestEngineCompileError(t *testing.T) {
	dir := t.TempDir()
	c := writeCaseFiles(t, dir, 1, "", "Hello\n")
	problem := Problem{ID: 1, Type: ProblemStandard, Cases: []Case{c, c}}
	if runtime.GOOS != "linux" {
		t.Skip("sandbox requires linux ptrace")
	}
	catalog := &Catalog{
		Problems: map[int32]Problem{1: problem},
		Languages: map[string]Language{"sh": {
			Name:     "sh",
			FileName: "main.sh",
			Command:  []string{"/bin/sh", "-c", "echo boom >&2; exit 1"},
		}},
	}
	e := NewEngine(t.TempDir(), catalog)
	task := &Task{job: NewJob(1, JobRequest{SourceCode: "x", Language: "sh", ProblemID: 1}, 2)}
	e.Run(task)

	job := task.SnapJob()
	if job.Result != StatusCompilationError || job.State != JobFinished {
		t.Fatalf("job = %+v", job)
	}
	if job.Cases[0].Result != StatusCompilationError {
		t.Fatalf("compile slot = %v", job.Cases[0].Result)
	}
	for i := 1; i < len(job.Cases); i++ {
		if job.Cases[i].Result != StatusWaiting {
			t.Fatalf("case %d = %v, want waiting", i, job.Cases[i].Result)
		}
	}
	if job.Score != 0 {
		t.Fatalf("score = %f", job.Score)
	}
}

// Scenario C: wall-clock limit enforcement.
func TestEngineTimeLimitExceeded(t *testing.T) {
	dir := t.TempDir()
	c := writeCaseFiles(t, dir, 1, "", "Hello\n")
	c.Limits.TimeUS = 100_000
	problem := Problem{ID: 1, Type: ProblemStandard, Cases: []Case{c}}
	e, newTask := engineFixture(t, problem)

	task := newTask("#!/bin/sh\nwhile true; do :; done\n")
	e.Run(task)

	job := task.SnapJob()
	if job.Result != StatusTimeLimitExceeded {
		t.Fatalf("result = %v", job.Result)
	}
	if job.Cases[1].Result != StatusTimeLimitExceeded {
		t.Fatalf("case 1 = %v", job.Cases[1].Result)
	}
	if job.Cases[1].TimeUS < 100_000 {
		t.Fatalf("measured time %dus is below the limit", job.Cases[1].TimeUS)
	}
}

// Scenario D: packed grouping, case 2 wrong.
func TestEnginePackedGroups(t *testing.T) {
	dir := t.TempDir()
	c1 := writeCaseFiles(t, dir, 1, "", "Hello\n")
	c2 := writeCaseFiles(t, dir, 2, "", "World\n")
	c3 := writeCaseFiles(t, dir, 3, "", "Hello\n")
	c1.Score, c2.Score, c3.Score = 10, 10, 10
	problem := Problem{
		ID:    1,
		Type:  ProblemStandard,
		Cases: []Case{c1, c2, c3},
		Misc:  Misc{Kind: MiscPacked, Packing: [][]int{{1, 2}, {3}}},
	}
	e, newTask := engineFixture(t, problem)

	task := newTask("#!/bin/sh\necho Hello\n")
	e.Run(task)

	job := task.SnapJob()
	if job.Cases[1].Result != StatusAccepted {
		t.Fatalf("case 1 = %v", job.Cases[1].Result)
	}
	if job.Cases[2].Result != StatusWrongAnswer {
		t.Fatalf("case 2 = %v", job.Cases[2].Result)
	}
	if job.Cases[3].Result != StatusAccepted {
		t.Fatalf("case 3 = %v", job.Cases[3].Result)
	}
	if job.Score != 10 {
		t.Fatalf("score = %f, want only the second group's 10", job.Score)
	}
	if job.Result != StatusWrongAnswer {
		t.Fatalf("result = %v", job.Result)
	}
}

// A failed case inside a group skips the group remainder.
func TestEnginePackedSkipsGroupRemainder(t *testing.T) {
	dir := t.TempDir()
	c1 := writeCaseFiles(t, dir, 1, "", "World\n") // fails first
	c2 := writeCaseFiles(t, dir, 2, "", "Hello\n")
	c3 := writeCaseFiles(t, dir, 3, "", "Hello\n")
	c1.Score, c2.Score, c3.Score = 10, 10, 10
	problem := Problem{
		ID:    1,
		Type:  ProblemStandard,
		Cases: []Case{c1, c2, c3},
		Misc:  Misc{Kind: MiscPacked, Packing: [][]int{{1, 2, 3}}},
	}
	e, newTask := engineFixture(t, problem)

	task := newTask("#!/bin/sh\necho Hello\n")
	e.Run(task)

	job := task.SnapJob()
	if job.Cases[1].Result != StatusWrongAnswer {
		t.Fatalf("case 1 = %v", job.Cases[1].Result)
	}
	for _, i := range []int{2, 3} {
		if job.Cases[i].Result != StatusSkipped {
			t.Fatalf("case %d = %v, want skipped", i, job.Cases[i].Result)
		}
	}
	if job.Score != 0 {
		t.Fatalf("score = %f", job.Score)
	}
}

// Flat mode sums accepted case scores only.
func TestEngineFlatPartialScore(t *testing.T) {
	dir := t.TempDir()
	c1 := writeCaseFiles(t, dir, 1, "", "Hello\n")
	c2 := writeCaseFiles(t, dir, 2, "", "World\n")
	c1.Score, c2.Score = 60, 40
	problem := Problem{ID: 1, Type: ProblemStandard, Cases: []Case{c1, c2}}
	e, newTask := engineFixture(t, problem)

	task := newTask("#!/bin/sh\necho Hello\n")
	e.Run(task)

	job := task.SnapJob()
	if job.Score != 60 {
		t.Fatalf("score = %f, want 60", job.Score)
	}
	if job.Result != StatusWrongAnswer {
		t.Fatalf("first failure must win the result, got %v", job.Result)
	}
	if job.Cases[2].Result != StatusWrongAnswer {
		t.Fatalf("case 2 = %v", job.Cases[2].Result)
	}
}

// Strict problems reject output that standard would accept.
func TestEngineStrictProblem(t *testing.T) {
	dir := t.TempDir()
	c := writeCaseFiles(t, dir, 1, "", "Hello")
	c.Score = 100
	problem := Problem{ID: 1, Type: ProblemStrict, Cases: []Case{c}}
	e, newTask := engineFixture(t, problem)

	// echo appends a newline the answer lacks
	task := newTask("#!/bin/sh\necho Hello\n")
	e.Run(task)

	job := task.SnapJob()
	if job.Result != StatusWrongAnswer {
		t.Fatalf("strict must reject a trailing newline, got %v", job.Result)
	}
}

func TestEngineUnknownProblemIsSystemError(t *testing.T) {
	e := NewEngine(t.TempDir(), &Catalog{
		Problems:  map[int32]Problem{},
		Languages: map[string]Language{"sh": shLanguage},
	})
	task := &Task{job: NewJob(1, JobRequest{Language: "sh", ProblemID: 42}, 1)}
	e.Run(task)
	job := task.SnapJob()
	if job.Result != StatusSystemError || job.State != JobFinished {
		t.Fatalf("job = %+v", job)
	}
}
