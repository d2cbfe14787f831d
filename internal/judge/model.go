package judge

import (
	"encoding/json"
	"time"
)

// Limits bounds a case's resource consumption. A zero value on either axis
// means "unlimited" for that axis.
type Limits struct {
	TimeUS      uint64 `json:"time_limit"`
	MemoryBytes uint64 `json:"memory_limit"`
}

// Case is one test: an input/answer file pair plus per-case limits and the
// points it contributes when accepted.
type Case struct {
	Score      float32 `json:"score"`
	InputFile  string  `json:"input_file"`
	AnswerFile string  `json:"answer_file"`
	Limits     Limits  `json:"-"`
}

// caseWire mirrors the flattened config schema (time_limit/memory_limit
// sit alongside score/input_file/answer_file, not nested).
type caseWire struct {
	Score       float32 `json:"score"`
	InputFile   string  `json:"input_file"`
	AnswerFile  string  `json:"answer_file"`
	TimeLimit   uint64  `json:"time_limit"`
	MemoryLimit uint64  `json:"memory_limit"`
}

func (c Case) MarshalJSON() ([]byte, error) {
	return json.Marshal(caseWire{
		Score:       c.Score,
		InputFile:   c.InputFile,
		AnswerFile:  c.AnswerFile,
		TimeLimit:   c.Limits.TimeUS,
		MemoryLimit: c.Limits.MemoryBytes,
	})
}

func (c *Case) UnmarshalJSON(data []byte) error {
	var w caseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Score = w.Score
	c.InputFile = w.InputFile
	c.AnswerFile = w.AnswerFile
	c.Limits = Limits{TimeUS: w.TimeLimit, MemoryBytes: w.MemoryLimit}
	return nil
}

// Language describes one compile toolchain. Command is an argv template:
// each token may contain %INPUT%/%OUTPUT% placeholders substituted with
// the source path and executable path respectively.
type Language struct {
	Name     string   `json:"name"`
	FileName string   `json:"file_name"`
	Command  []string `json:"command"`
}

// ProblemType selects the judging strategy for every case of a problem.
type ProblemType string

const (
	ProblemStandard       ProblemType = "standard"
	ProblemStrict         ProblemType = "strict"
	ProblemSpecialJudge   ProblemType = "spj"
	ProblemDynamicRanking ProblemType = "dynamic_ranking"
)

// MiscKind tags which variant of Problem.Misc is populated.
type MiscKind int

const (
	MiscNone MiscKind = iota
	MiscPacked
	MiscSpecialJudge
	MiscDynamicRanking
)

// Misc is the untagged problem.misc config variant: either {},
// {packing}, {special_judge} (argv or lua_script) or
// {dynamic_ranking_ratio}.
type Misc struct {
	Kind MiscKind

	// MiscPacked: 1-based case indices per scoring group, in order.
	Packing [][]int

	// MiscSpecialJudge: exactly one of Argv or LuaScript is set.
	Argv      []string
	LuaScript string

	// MiscDynamicRanking.
	DynamicRatio int
}

type miscWire struct {
	Packing             [][]int  `json:"packing,omitempty"`
	SpecialJudge        []string `json:"special_judge,omitempty"`
	LuaScript           string   `json:"lua_script,omitempty"`
	DynamicRankingRatio *int     `json:"dynamic_ranking_ratio,omitempty"`
}

func (m Misc) MarshalJSON() ([]byte, error) {
	var w miscWire
	switch m.Kind {
	case MiscPacked:
		w.Packing = m.Packing
	case MiscSpecialJudge:
		if m.LuaScript != "" {
			w.LuaScript = m.LuaScript
		} else {
			w.SpecialJudge = m.Argv
		}
	case MiscDynamicRanking:
		r := m.DynamicRatio
		w.DynamicRankingRatio = &r
	}
	return json.Marshal(w)
}

func (m *Misc) UnmarshalJSON(data []byte) error {
	var w miscWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Packing != nil:
		m.Kind = MiscPacked
		m.Packing = w.Packing
	case w.LuaScript != "":
		m.Kind = MiscSpecialJudge
		m.LuaScript = w.LuaScript
	case w.SpecialJudge != nil:
		m.Kind = MiscSpecialJudge
		m.Argv = w.SpecialJudge
	case w.DynamicRankingRatio != nil:
		m.Kind = MiscDynamicRanking
		m.DynamicRatio = *w.DynamicRankingRatio
	default:
		m.Kind = MiscNone
	}
	return nil
}

// Problem is static configuration, loaded once at startup.
type Problem struct {
	ID          int32       `json:"id"`
	Name        string      `json:"name"`
	Type        ProblemType `json:"type"`
	Description string      `json:"desc,omitempty"`
	Cases       []Case      `json:"cases"`
	Misc        Misc        `json:"misc"`
}

// ProblemDisplay is the condensed projection returned by GET /problems/{id}:
// it must never leak case input/answer file paths.
type ProblemDisplay struct {
	ID         int32       `json:"id"`
	Name       string      `json:"name"`
	Type       ProblemType `json:"type"`
	CasesCount int         `json:"cases_count"`
	TotalScore float32     `json:"total_score"`
}

func (p Problem) Display() ProblemDisplay {
	var total float32
	for _, c := range p.Cases {
		total += c.Score
	}
	return ProblemDisplay{ID: p.ID, Name: p.Name, Type: p.Type, CasesCount: len(p.Cases), TotalScore: total}
}

// JobState is the job-level lifecycle state.
type JobState string

const (
	JobQueueing JobState = "queueing"
	JobRunning  JobState = "running"
	JobFinished JobState = "finished"
	JobCanceled JobState = "canceled"
)

// JobRequest is the user-supplied submission payload.
type JobRequest struct {
	SourceCode string `json:"source_code"`
	Language   string `json:"language"`
	UserID     int32  `json:"user_id"`
	ContestID  int32  `json:"contest_id"`
	ProblemID  int32  `json:"problem_id"`
}

// JobCase is the per-case outcome. Index 0 always reflects the compile
// step and never a scored case; indices 1..N mirror problem.Cases 1:1.
type JobCase struct {
	ID          int32  `json:"id"`
	Result      Status `json:"result"`
	TimeUS      uint64 `json:"time"`
	MemoryBytes uint64 `json:"memory"`
	Info        string `json:"info,omitempty"`
}

// Job is a single submission's full record.
type Job struct {
	ID          int32      `json:"id"`
	CreatedTime time.Time  `json:"created_time"`
	UpdatedTime time.Time  `json:"updated_time"`
	Submission  JobRequest `json:"submission"`
	State       JobState   `json:"state"`
	Result      Status     `json:"result"`
	Score       float32    `json:"score"`
	Cases       []JobCase  `json:"cases"`
}

// Clone returns a deep copy safe to hand to readers while the worker
// keeps mutating the original's Cases in place.
func (j Job) Clone() Job {
	out := j
	out.Cases = append([]JobCase(nil), j.Cases...)
	return out
}

// NewJob builds a fresh job in its queueing state: all cases waiting,
// score reset, case 0 reserved for the compile step.
func NewJob(id int32, req JobRequest, caseCount int) Job {
	now := time.Now()
	cases := make([]JobCase, caseCount+1)
	for i := range cases {
		cases[i] = JobCase{ID: int32(i), Result: StatusWaiting}
	}
	return Job{
		ID:          id,
		CreatedTime: now,
		UpdatedTime: now,
		Submission:  req,
		State:       JobQueueing,
		Result:      StatusWaiting,
		Cases:       cases,
	}
}

// User is a registered submitter. User id 0 ("root") is reserved.
type User struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Contest groups problems, users and a per-(user,problem) submission cap
// over a time window. From/To use the millisecond-precision contest
// datetime wire format, unlike job timestamps which stay RFC 3339.
type Contest struct {
	ID              int32    `json:"id"`
	Name            string   `json:"name"`
	From            DateTime `json:"from"`
	To              DateTime `json:"to"`
	ProblemIDs      []int32  `json:"problem_ids"`
	UserIDs         []int32  `json:"user_ids"`
	SubmissionLimit int32    `json:"submission_limit"`
}

// Ranking is one row of a computed ranklist.
type Ranking struct {
	User   User      `json:"user"`
	Rank   int32     `json:"rank"`
	Scores []float32 `json:"scores"`
}

// JobQuery is the optional filter set bound from GET /jobs query params.
type JobQuery struct {
	UserID    *int32
	UserName  *string
	ContestID *int32
	ProblemID *int32
	Language  *string
	From      *time.Time
	To        *time.Time
	State     *JobState
	Result    *Status
}
