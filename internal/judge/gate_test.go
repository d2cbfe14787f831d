package judge

import (
	"errors"
	"testing"

	"github.com/originjudge/oj/internal/apperr"
)

type fakeUsers map[int32]bool

func (f fakeUsers) UserExists(id int32) bool { return f[id] }

type fakeContests struct {
	contests map[int32]Contest
	counts   map[[3]int32]int
}

func (f *fakeContests) FindContest(id int32) (Contest, bool) {
	c, ok := f.contests[id]
	return c, ok
}

func (f *fakeContests) CountSubmissions(contestID, problemID, userID int32) int {
	return f.counts[[3]int32{contestID, problemID, userID}]
}

func gateFixture() (*Gate, *fakeContests) {
	catalog := &Catalog{
		Problems: map[int32]Problem{
			1: {ID: 1, Type: ProblemStandard, Cases: []Case{{Score: 100}}},
		},
		Languages: map[string]Language{
			"c": {Name: "c", FileName: "main.c", Command: []string{"cc", "%INPUT%", "-o", "%OUTPUT%"}},
		},
	}
	contests := &fakeContests{
		contests: map[int32]Contest{
			5: {ID: 5, ProblemIDs: []int32{1}, UserIDs: []int32{7}, SubmissionLimit: 2},
		},
		counts: map[[3]int32]int{},
	}
	return NewGate(catalog, fakeUsers{7: true}, contests, 10), contests
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	var e *apperr.Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not an apperr", err)
	}
	if e.Reason != kind {
		t.Fatalf("error kind = %v, want %v", e.Reason, kind)
	}
}

func TestGateAdmit(t *testing.T) {
	g, _ := gateFixture()
	job, err := g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 1})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if job.ID != 11 {
		t.Fatalf("first id after max=10 should be 11, got %d", job.ID)
	}
	if len(job.Cases) != 2 || job.State != JobQueueing {
		t.Fatalf("job shape: %+v", job)
	}
}

func TestGateIDsStrictlyIncrease(t *testing.T) {
	g, _ := gateFixture()
	var last int32
	for i := 0; i < 5; i++ {
		job, err := g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 1})
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if job.ID <= last {
			t.Fatalf("id %d not greater than %d", job.ID, last)
		}
		last = job.ID
	}
}

func TestGateValidationOrder(t *testing.T) {
	g, contests := gateFixture()

	_, err := g.Admit(JobRequest{Language: "c", UserID: 99, ProblemID: 1})
	wantKind(t, err, apperr.NotFound) // user first

	_, err = g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 99})
	wantKind(t, err, apperr.NotFound) // then problem

	_, err = g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 1, ContestID: 99})
	wantKind(t, err, apperr.NotFound) // then contest existence

	contests.contests[6] = Contest{ID: 6, ProblemIDs: []int32{2}, UserIDs: []int32{7}}
	_, err = g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 1, ContestID: 6})
	wantKind(t, err, apperr.InvalidArgument) // problem not in contest

	contests.contests[8] = Contest{ID: 8, ProblemIDs: []int32{1}, UserIDs: []int32{9}}
	_, err = g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 1, ContestID: 8})
	wantKind(t, err, apperr.InvalidArgument) // user not in contest

	_, err = g.Admit(JobRequest{Language: "x", UserID: 7, ProblemID: 1})
	wantKind(t, err, apperr.NotFound) // language last
}

func TestGateSubmissionLimit(t *testing.T) {
	g, contests := gateFixture()
	contests.counts[[3]int32{5, 1, 7}] = 2
	_, err := g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 1, ContestID: 5})
	wantKind(t, err, apperr.RateLimit)

	contests.counts[[3]int32{5, 1, 7}] = 1
	if _, err := g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 1, ContestID: 5}); err != nil {
		t.Fatalf("under the cap must admit: %v", err)
	}
}

func TestGateGlobalContestSkipsLimit(t *testing.T) {
	g, contests := gateFixture()
	contests.counts[[3]int32{0, 1, 7}] = 100
	if _, err := g.Admit(JobRequest{Language: "c", UserID: 7, ProblemID: 1, ContestID: 0}); err != nil {
		t.Fatalf("contest 0 must bypass the cap: %v", err)
	}
}
