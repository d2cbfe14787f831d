package judge

import (
	"sync/atomic"

	"github.com/originjudge/oj/internal/apperr"
)

// UserLookup and ContestLookup abstract the store/queue-fused existence
// and counting checks the gate needs, so the gate package has no direct
// dependency on internal/store.
type UserLookup interface {
	UserExists(id int32) bool
}

type ContestLookup interface {
	FindContest(id int32) (Contest, bool)
	CountSubmissions(contestID, problemID, userID int32) int
}

// Gate validates and admits new submissions. It owns the
// monotonic job-id counter.
type Gate struct {
	catalog  *Catalog
	users    UserLookup
	contests ContestLookup
	nextID   int64
}

// NewGate seeds the job id counter to the highest persisted id so ids
// keep increasing across restarts.
func NewGate(catalog *Catalog, users UserLookup, contests ContestLookup, maxPersistedID int32) *Gate {
	return &Gate{catalog: catalog, users: users, contests: contests, nextID: int64(maxPersistedID)}
}

// Admit validates req — user, problem, contest membership and cap,
// language, in that order — erroring at the
// first failure, and returns a freshly numbered, all-waiting Job ready
// for the caller to enqueue.
func (g *Gate) Admit(req JobRequest) (Job, error) {
	if !g.users.UserExists(req.UserID) {
		return Job{}, apperr.New(apperr.NotFound, "user %d not found", req.UserID)
	}
	problem, ok := g.catalog.Problems[req.ProblemID]
	if !ok {
		return Job{}, apperr.New(apperr.NotFound, "problem %d not found", req.ProblemID)
	}
	if req.ContestID != 0 {
		contest, ok := g.contests.FindContest(req.ContestID)
		if !ok {
			return Job{}, apperr.New(apperr.NotFound, "contest %d not found", req.ContestID)
		}
		if !contains(contest.ProblemIDs, req.ProblemID) || !contains(contest.UserIDs, req.UserID) {
			return Job{}, apperr.New(apperr.InvalidArgument, "problem/user not part of contest %d", req.ContestID)
		}
		count := g.contests.CountSubmissions(req.ContestID, req.ProblemID, req.UserID)
		if contest.SubmissionLimit > 0 && int32(count) >= contest.SubmissionLimit {
			return Job{}, apperr.New(apperr.RateLimit, "submission limit reached for contest %d", req.ContestID)
		}
	}
	if _, ok := g.catalog.Languages[req.Language]; !ok {
		return Job{}, apperr.New(apperr.NotFound, "language %q not found", req.Language)
	}

	id := int32(atomic.AddInt64(&g.nextID, 1))
	return NewJob(id, req, len(problem.Cases)), nil
}

func contains(ids []int32, id int32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
