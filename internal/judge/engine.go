package judge

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/originjudge/oj/internal/sandbox"
)

// Catalog is the static configuration loaded at startup: every known
// problem and language, keyed for O(1) lookup during job execution.
type Catalog struct {
	Problems  map[int32]Problem
	Languages map[string]Language
}

// Engine orchestrates one job at a time: compile, then sequential
// per-case (or per-group) execution, judging and scoring. There is
// exactly one Engine per process; sequencing across jobs is the Queue's
// job (see queue.go), not the Engine's.
type Engine struct {
	tempDirBase    string
	catalog        *Catalog
	specialJudgers map[int32]SpecialJudger // keyed by problem id
}

func NewEngine(tempDirBase string, catalog *Catalog) *Engine {
	return &Engine{
		tempDirBase:    tempDirBase,
		catalog:        catalog,
		specialJudgers: make(map[int32]SpecialJudger),
	}
}

// RegisterSpecialJudger associates a problem id with the judger used for
// its special_judge cases (either an ExternalJudger or LuaJudger).
func (e *Engine) RegisterSpecialJudger(problemID int32, j SpecialJudger) {
	e.specialJudgers[problemID] = j
}

// Run executes t.job in place: compile, then every case in declaration
// order. Every mutation goes through t.update so HTTP readers calling
// t.SnapJob concurrently always see a consistent snapshot; no mutex is
// ever held across the sandboxed child wait or file I/O below.
func (e *Engine) Run(t *Task) {
	t.update(func() {
		t.job.State = JobRunning
		t.job.Result = StatusRunning
	})

	problem, ok := e.catalog.Problems[t.job.Submission.ProblemID]
	if !ok {
		t.update(func() {
			t.job.Result = StatusSystemError
			t.job.State = JobFinished
		})
		return
	}
	lang, ok := e.catalog.Languages[t.job.Submission.Language]
	if !ok {
		t.update(func() {
			t.job.Result = StatusSystemError
			t.job.State = JobFinished
		})
		return
	}

	tempDir, err := newJobTempDir(e.tempDirBase)
	if err != nil {
		t.update(func() {
			t.job.Result = StatusSystemError
			t.job.State = JobFinished
		})
		return
	}
	defer os.RemoveAll(tempDir)

	compiler := NewCompiler(lang)
	compileStatus, compileOut := compiler.Compile(t.job.Submission.SourceCode, tempDir)
	t.update(func() {
		t.job.Cases[0].Result = compileStatus
	})

	if compileStatus != StatusCompilationSuccess {
		t.update(func() {
			t.job.Cases[0].Info = compileOut
			t.job.Result = compileStatus
			t.job.Score = 0
			t.job.State = JobFinished
		})
		return
	}
	executable := compileOut

	if problem.Misc.Kind == MiscPacked {
		for _, group := range problem.Misc.Packing {
			groupValid := true
			var groupScore float32
			for _, oneBased := range group {
				if !groupValid {
					t.update(func() {
						t.job.Cases[oneBased].Result = StatusSkipped
					})
					continue
				}
				e.runOneCase(t, &problem, executable, tempDir, oneBased)
				result := t.SnapJob().Cases[oneBased].Result
				if result != StatusAccepted {
					groupValid = false
					groupScore = 0
				} else {
					groupScore += problem.Cases[oneBased-1].Score
				}
			}
			gs := groupScore
			t.update(func() {
				t.job.Score += gs
			})
		}
	} else {
		for i := 1; i < len(t.job.Cases); i++ {
			e.runOneCase(t, &problem, executable, tempDir, i)
			if t.SnapJob().Cases[i].Result == StatusAccepted {
				// job case 0 is the compile slot, so job case i is
				// problem case i-1
				score := problem.Cases[i-1].Score
				t.update(func() {
					t.job.Score += score
				})
			}
		}
	}

	t.update(func() {
		if t.job.Result == StatusRunning {
			t.job.Result = StatusAccepted
		}
		t.job.State = JobFinished
	})
}

// runOneCase runs and judges a single case, mutating t.job.Cases[caseIdx]
// and, via the first-failure-wins rule, t.job.Result.
func (e *Engine) runOneCase(t *Task, problem *Problem, executable, tempDir string, caseIdx int) {
	t.update(func() {
		t.job.Cases[caseIdx].Result = StatusRunning
	})

	c := problem.Cases[caseIdx-1]
	outFile := filepath.Join(tempDir, caseOutputName(caseIdx))
	res := sandbox.Run(sandbox.Input{
		Executable: executable,
		InputFile:  c.InputFile,
		OutputFile: outFile,
		Limits:     sandbox.Limits{TimeUS: c.Limits.TimeUS, MemoryBytes: c.Limits.MemoryBytes},
	})

	if res.Outcome != sandbox.OutcomeAccepted {
		runStatus := statusFromOutcome(res.Outcome)
		t.update(func() {
			t.job.Cases[caseIdx].TimeUS = res.Resources.TimeUS
			t.job.Cases[caseIdx].MemoryBytes = res.Resources.MemoryBytes
			t.job.Cases[caseIdx].Result = runStatus
			t.job.Cases[caseIdx].Info = res.Detail
			if t.job.Result == StatusRunning {
				t.job.Result = runStatus
			}
		})
		return
	}

	got, gotErr := sandbox.DrainOutput(outFile)
	expected, expErr := os.ReadFile(c.AnswerFile)
	if gotErr != nil || expErr != nil {
		t.update(func() {
			t.job.Cases[caseIdx].TimeUS = res.Resources.TimeUS
			t.job.Cases[caseIdx].MemoryBytes = res.Resources.MemoryBytes
			t.job.Cases[caseIdx].Result = StatusSystemError
			if t.job.Result == StatusRunning {
				t.job.Result = StatusSystemError
			}
		})
		return
	}

	var status Status
	var info string
	switch problem.Type {
	case ProblemStrict:
		status = StrictJudge(got, string(expected))
	case ProblemSpecialJudge:
		judger, ok := e.specialJudgers[problem.ID]
		if !ok {
			status = StatusSystemError
		} else {
			clone, err := judger.Clone()
			if err != nil {
				status = StatusSystemError
			} else {
				status, info = clone.Judge(got, string(expected), tempDir)
				clone.Dispose()
			}
		}
	default: // standard, dynamic_ranking
		status = StandardJudge(got, string(expected))
	}

	t.update(func() {
		t.job.Cases[caseIdx].TimeUS = res.Resources.TimeUS
		t.job.Cases[caseIdx].MemoryBytes = res.Resources.MemoryBytes
		t.job.Cases[caseIdx].Result = status
		t.job.Cases[caseIdx].Info = info
		if status != StatusAccepted && t.job.Result == StatusRunning {
			t.job.Result = status
		}
	})
}

func caseOutputName(idx int) string {
	return "case_" + strconv.Itoa(idx) + "_out"
}

// statusFromOutcome maps the sandbox's run classification onto the
// case status vocabulary.
func statusFromOutcome(o sandbox.Outcome) Status {
	switch o {
	case sandbox.OutcomeAccepted:
		return StatusAccepted
	case sandbox.OutcomeRuntimeError:
		return StatusRuntimeError
	case sandbox.OutcomeTimeLimitExceeded:
		return StatusTimeLimitExceeded
	case sandbox.OutcomeMemoryLimitExceeded:
		return StatusMemoryLimitExceeded
	default:
		return StatusSystemError
	}
}
