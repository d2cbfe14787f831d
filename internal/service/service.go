// Package service composes the judging engine, queue, submission gate,
// ranking engine and durable store into the operations the HTTP adapter
// calls, fusing an in-memory snapshot of the queue with the durable
// store on every read path.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/originjudge/oj/internal/apperr"
	"github.com/originjudge/oj/internal/judge"
	"github.com/originjudge/oj/internal/metrics"
	"github.com/originjudge/oj/internal/store"
)

type Service struct {
	catalog   *judge.Catalog
	repo      *store.Repository
	queue     *judge.Queue
	gate      *judge.Gate
	logger    *slog.Logger
	collector *metrics.Collector
	heartbeat *metrics.HeartbeatState

	done     chan struct{}
	doneOnce sync.Once

	mu       sync.Mutex
	users    map[int32]judge.User
	contests map[int32]judge.Contest
}

// New builds a Service; repo must already be Init'd (schema + seeded
// root user). collector and heartbeat may be nil when instrumentation
// is not wanted (tests).
func New(ctx context.Context, catalog *judge.Catalog, repo *store.Repository, logger *slog.Logger, collector *metrics.Collector, heartbeat *metrics.HeartbeatState) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		catalog:   catalog,
		repo:      repo,
		logger:    logger,
		collector: collector,
		heartbeat: heartbeat,
		done:      make(chan struct{}),
		users:     make(map[int32]judge.User),
		contests:  make(map[int32]judge.Contest),
	}

	users, err := repo.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	contests, err := repo.AllContests(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range contests {
		s.contests[c.ID] = c
	}

	engine := judge.NewEngine(filepath.Join(os.TempDir(), "oj-jobs"), catalog)
	for pid, p := range catalog.Problems {
		if p.Type == judge.ProblemSpecialJudge {
			if p.Misc.LuaScript != "" {
				j, err := judge.NewLuaJudger(p.Misc.LuaScript)
				if err == nil {
					engine.RegisterSpecialJudger(pid, j)
				}
			} else if len(p.Misc.Argv) > 0 {
				engine.RegisterSpecialJudger(pid, judge.NewExternalJudger(p.Misc.Argv))
			}
		}
	}

	s.queue = judge.NewQueue(engine, func(job judge.Job) {
		if err := repo.PutJob(context.Background(), job); err != nil {
			// store errors at final commit are logged and swallowed: the
			// in-memory mutation already published the result
			s.logger.Error("durable write failed", "job_id", job.ID, "error", err)
		}
		failed := job.Result == judge.StatusSystemError
		if s.collector != nil {
			s.collector.JobsProcessed.Inc()
			if failed {
				s.collector.JobsFailed.Inc()
			}
			for _, jc := range job.Cases[1:] {
				s.collector.CaseOutcomes.WithLabelValues(jc.Result.Ident()).Inc()
			}
			s.collector.QueueDepth.Set(float64(s.queue.Depth()))
		}
		if s.heartbeat != nil {
			s.heartbeat.JobFinished(failed)
		}
	})
	s.queue.OnStart(func(job judge.Job) {
		if s.heartbeat != nil {
			s.heartbeat.JobStarted(job.ID)
		}
		if s.collector != nil {
			s.collector.QueueDepth.Set(float64(s.queue.Depth()))
		}
	})
	s.queue.Start()

	maxJobID, err := repo.MaxJobID(ctx)
	if err != nil {
		return nil, err
	}
	s.gate = judge.NewGate(catalog, s, s, maxJobID)

	return s, nil
}

// UserExists implements judge.UserLookup.
func (s *Service) UserExists(id int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok
}

// FindContest implements judge.ContestLookup.
func (s *Service) FindContest(id int32) (judge.Contest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contests[id]
	return c, ok
}

// CountSubmissions implements judge.ContestLookup, fusing the in-memory
// queue with the durable store.
func (s *Service) CountSubmissions(contestID, problemID, userID int32) int {
	count := 0
	for _, j := range s.allJobsBestEffort() {
		if j.Submission.ContestID == contestID && j.Submission.ProblemID == problemID && j.Submission.UserID == userID {
			count++
		}
	}
	return count
}

func (s *Service) allJobsBestEffort() []judge.Job {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stored, err := s.repo.AllJobs(ctx)
	if err != nil {
		stored = nil
	}
	return mergeJobs(stored, s.queue.Snapshot())
}

// mergeJobs fuses stored (finished) jobs with the in-memory (still
// tracked) ones, preferring the in-memory copy when both exist (it is
// always at least as fresh).
func mergeJobs(stored, live []judge.Job) []judge.Job {
	byID := make(map[int32]judge.Job, len(stored)+len(live))
	for _, j := range stored {
		byID[j.ID] = j
	}
	for _, j := range live {
		byID[j.ID] = j
	}
	out := make([]judge.Job, 0, len(byID))
	for _, j := range byID {
		out = append(out, j)
	}
	return out
}

// SubmitJob validates and enqueues a new submission.
func (s *Service) SubmitJob(req judge.JobRequest) (judge.Job, error) {
	job, err := s.gate.Admit(req)
	if err != nil {
		return judge.Job{}, err
	}
	task := s.queue.Enqueue(job)
	return task.SnapJob(), nil
}

// GetJob fetches one job, fusing queue and store.
func (s *Service) GetJob(ctx context.Context, id int32) (judge.Job, error) {
	if t, ok := s.queue.Find(id); ok {
		return t.SnapJob(), nil
	}
	job, ok, err := s.repo.FindJob(ctx, id)
	if err != nil {
		return judge.Job{}, err
	}
	if !ok {
		return judge.Job{}, apperr.New(apperr.NotFound, "job %d not found", id)
	}
	return job, nil
}

// ListJobs fuses queue and store, applying the given filter and
// returning jobs in id order.
func (s *Service) ListJobs(ctx context.Context, q judge.JobQuery) ([]judge.Job, error) {
	if q.UserName != nil {
		// the user_name filter resolves to an id; an unknown name
		// matches nothing
		u, ok := s.findUserByName(*q.UserName)
		if !ok {
			return []judge.Job{}, nil
		}
		if q.UserID != nil && *q.UserID != u.ID {
			return []judge.Job{}, nil
		}
		id := u.ID
		q.UserID = &id
	}
	stored, err := s.repo.AllJobs(ctx)
	if err != nil {
		return nil, err
	}
	jobs := mergeJobs(stored, s.queue.Snapshot())
	out := make([]judge.Job, 0, len(jobs))
	for _, j := range jobs {
		if matchesQuery(j, q) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Service) findUserByName(name string) (judge.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Name == name {
			return u, true
		}
	}
	return judge.User{}, false
}

func matchesQuery(j judge.Job, q judge.JobQuery) bool {
	if q.UserID != nil && j.Submission.UserID != *q.UserID {
		return false
	}
	if q.ContestID != nil && j.Submission.ContestID != *q.ContestID {
		return false
	}
	if q.ProblemID != nil && j.Submission.ProblemID != *q.ProblemID {
		return false
	}
	if q.Language != nil && j.Submission.Language != *q.Language {
		return false
	}
	if q.State != nil && j.State != *q.State {
		return false
	}
	if q.Result != nil && j.Result != *q.Result {
		return false
	}
	if q.From != nil && j.CreatedTime.Before(*q.From) {
		return false
	}
	if q.To != nil && j.CreatedTime.After(*q.To) {
		return false
	}
	return true
}

// RerunJob re-enqueues a finished job with fresh case state.
func (s *Service) RerunJob(ctx context.Context, id int32) (judge.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return judge.Job{}, err
	}
	if job.State != judge.JobFinished {
		return judge.Job{}, apperr.New(apperr.InvalidState, "job %d is not finished", id)
	}
	problem := s.catalog.Problems[job.Submission.ProblemID]
	fresh := judge.NewJob(job.ID, job.Submission, len(problem.Cases))
	task := s.queue.Rerun(fresh)
	return task.SnapJob(), nil
}

// CancelJob removes a still-queued job.
func (s *Service) CancelJob(id int32) error {
	if !s.queue.Cancel(id) {
		return apperr.New(apperr.InvalidState, "job %d is not queueing", id)
	}
	return nil
}

// Shutdown, for POST /internal/exit, tells the queue worker to stop
// pulling new jobs and closes Done at once. It does not wait for a job
// the worker is still running, and jobs left queued are not run.
func (s *Service) Shutdown() {
	s.queue.Shutdown()
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once Shutdown has been requested; the main goroutine
// uses it to stop the HTTP server.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// QueueDepth reports the number of jobs tracked in memory, for the admin
// status endpoint.
func (s *Service) QueueDepth() int {
	return s.queue.Depth()
}

// LookupUser returns a user by id.
func (s *Service) LookupUser(id int32) (judge.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// LookupUserByName returns a user by exact name.
func (s *Service) LookupUserByName(name string) (judge.User, bool) {
	return s.findUserByName(name)
}

// --- Users ---

func (s *Service) CreateOrUpdateUser(ctx context.Context, id int32, name string) (judge.User, error) {
	s.mu.Lock()
	for _, existing := range s.users {
		if existing.Name == name && existing.ID != id {
			s.mu.Unlock()
			return judge.User{}, apperr.New(apperr.InvalidArgument, "user name %q already exists", name)
		}
	}
	if id == 0 {
		max := int32(0)
		for uid := range s.users {
			if uid > max {
				max = uid
			}
		}
		id = max + 1
	} else if _, ok := s.users[id]; !ok {
		s.mu.Unlock()
		return judge.User{}, apperr.New(apperr.NotFound, "user %d not found", id)
	}
	u := judge.User{ID: id, Name: name}
	s.users[id] = u
	s.mu.Unlock()

	if err := s.repo.PutUser(ctx, u); err != nil {
		return judge.User{}, err
	}
	return u, nil
}

func (s *Service) ListUsers() []judge.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]judge.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Contests ---

// CreateOrUpdateContest persists a contest. hasID distinguishes an
// explicit id (update, must exist, 0 forbidden) from an omitted one
// (create, next id allocated).
func (s *Service) CreateOrUpdateContest(ctx context.Context, c judge.Contest, hasID bool) (judge.Contest, error) {
	s.mu.Lock()
	if hasID {
		if c.ID == 0 {
			s.mu.Unlock()
			return judge.Contest{}, apperr.New(apperr.InvalidArgument, "contest id 0 is reserved")
		}
		if _, ok := s.contests[c.ID]; !ok {
			s.mu.Unlock()
			return judge.Contest{}, apperr.New(apperr.NotFound, "contest %d not found", c.ID)
		}
	} else {
		max := int32(0)
		for cid := range s.contests {
			if cid > max {
				max = cid
			}
		}
		c.ID = max + 1
	}
	s.contests[c.ID] = c
	s.mu.Unlock()
	if err := s.repo.PutContest(ctx, c); err != nil {
		return judge.Contest{}, err
	}
	return c, nil
}

func (s *Service) ListContests() []judge.Contest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]judge.Contest, 0, len(s.contests))
	for _, c := range s.contests {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) GetContest(id int32) (judge.Contest, bool) {
	if id == 0 {
		all := make([]int32, 0, len(s.catalog.Problems))
		for pid := range s.catalog.Problems {
			all = append(all, pid)
		}
		return judge.Contest{ID: 0, Name: "Global", ProblemIDs: all}, true
	}
	return s.FindContest(id)
}

// GetContestProblems resolves a contest's problem ids to full Problem
// values (or every configured problem, for the id=0 pseudo-contest).
func (s *Service) GetContestProblems(id int32) ([]judge.Problem, error) {
	contest, ok := s.GetContest(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "contest %d not found", id)
	}
	out := make([]judge.Problem, 0, len(contest.ProblemIDs))
	for _, pid := range contest.ProblemIDs {
		if p, ok := s.catalog.Problems[pid]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) GetProblemDisplay(id int32) (judge.ProblemDisplay, error) {
	p, ok := s.catalog.Problems[id]
	if !ok {
		return judge.ProblemDisplay{}, apperr.New(apperr.NotFound, "problem %d not found", id)
	}
	return p.Display(), nil
}

// GetRanklist computes a ranklist scoped to a contest (or every
// configured problem, for id=0).
func (s *Service) GetRanklist(ctx context.Context, contestID int32, rule judge.ScoringRule, tb *judge.TieBreaker) ([]judge.Ranking, error) {
	contest, ok := s.GetContest(contestID)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "contest %d not found", contestID)
	}
	var users []judge.User
	if contestID == 0 {
		users = s.ListUsers()
	} else {
		s.mu.Lock()
		for _, uid := range contest.UserIDs {
			if u, ok := s.users[uid]; ok {
				users = append(users, u)
			}
		}
		s.mu.Unlock()
	}
	stored, err := s.repo.AllJobs(ctx)
	if err != nil {
		return nil, err
	}
	jobs := mergeJobs(stored, s.queue.Snapshot())
	return judge.Ranklist(users, contest.ProblemIDs, jobs, rule, tb), nil
}
