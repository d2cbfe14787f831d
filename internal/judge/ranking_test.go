package judge

import (
	"testing"
	"time"
)

func rankJob(user, problem int32, score float32, created time.Time) Job {
	return Job{
		CreatedTime: created,
		Submission:  JobRequest{UserID: user, ProblemID: problem},
		State:       JobFinished,
		Score:       score,
	}
}

func TestScoringRuleLatest(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := []Job{
		rankJob(1, 1, 100, base),
		rankJob(1, 1, 40, base.Add(time.Hour)),
	}
	rep := ScoringLatest.choose(jobs)
	if rep.Score != 40 {
		t.Fatalf("latest picked score %f", rep.Score)
	}
}

func TestScoringRuleHighestTieEarliest(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := []Job{
		rankJob(1, 1, 100, base.Add(time.Hour)),
		rankJob(1, 1, 100, base),
		rankJob(1, 1, 60, base.Add(2*time.Hour)),
	}
	rep := ScoringHighest.choose(jobs)
	if rep.Score != 100 || !rep.CreatedTime.Equal(base) {
		t.Fatalf("highest tie must pick the earliest: %+v", rep)
	}
}

// Scenario F from the spec: equal highest scores, user_id tie-breaker
// ranks the lower id first; no tie-breaker shares the rank.
func TestRanklistUserIDTieBreaker(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []User{{ID: 1, Name: "u1"}, {ID: 2, Name: "u2"}}
	jobs := []Job{
		rankJob(1, 10, 100, base), // u1 earlier
		rankJob(2, 10, 100, base.Add(time.Hour)),
	}

	tb := TieBreakerUserID
	got := Ranklist(users, []int32{10}, jobs, ScoringHighest, &tb)
	if got[0].User.ID != 1 || got[0].Rank != 1 {
		t.Fatalf("rank 1 = %+v, want user 1", got[0])
	}
	if got[1].User.ID != 2 || got[1].Rank != 2 {
		t.Fatalf("rank 2 = %+v, want user 2", got[1])
	}

	got = Ranklist(users, []int32{10}, jobs, ScoringHighest, nil)
	if got[0].Rank != 1 || got[1].Rank != 1 {
		t.Fatalf("no tie-breaker must share rank: %d, %d", got[0].Rank, got[1].Rank)
	}
}

func TestRanklistCompetitionRankJump(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []User{{ID: 1}, {ID: 2}, {ID: 3}}
	jobs := []Job{
		rankJob(1, 10, 100, base),
		rankJob(2, 10, 100, base.Add(time.Minute)),
		rankJob(3, 10, 50, base.Add(2*time.Minute)),
	}
	got := Ranklist(users, []int32{10}, jobs, ScoringHighest, nil)
	if got[0].Rank != 1 || got[1].Rank != 1 {
		t.Fatalf("tied users must share rank 1: %+v", got)
	}
	if got[2].Rank != 3 {
		t.Fatalf("rank after a tie must jump to the 1-based index, got %d", got[2].Rank)
	}
}

func TestRanklistSubmissionTimeTieBreaker(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []User{{ID: 1}, {ID: 2}}
	jobs := []Job{
		rankJob(1, 10, 100, base.Add(time.Hour)),
		rankJob(2, 10, 100, base),
	}
	tb := TieBreakerSubmissionTime
	got := Ranklist(users, []int32{10}, jobs, ScoringHighest, &tb)
	if got[0].User.ID != 2 {
		t.Fatalf("earlier submitter must rank first, got user %d", got[0].User.ID)
	}
	if got[1].Rank != 2 {
		t.Fatalf("distinct tie-breaker values must not share rank")
	}
}

func TestRanklistSubmissionCountTieBreaker(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []User{{ID: 1}, {ID: 2}}
	jobs := []Job{
		rankJob(1, 10, 100, base),
		rankJob(1, 10, 80, base.Add(time.Minute)),
		rankJob(2, 10, 100, base.Add(2*time.Minute)),
	}
	tb := TieBreakerSubmissionCount
	got := Ranklist(users, []int32{10}, jobs, ScoringHighest, &tb)
	if got[0].User.ID != 2 {
		t.Fatalf("fewer submissions must rank first, got user %d", got[0].User.ID)
	}
}

func TestRanklistUserWithNoJobs(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []User{{ID: 1}, {ID: 2}}
	jobs := []Job{rankJob(1, 10, 70, base)}
	got := Ranklist(users, []int32{10, 11}, jobs, ScoringHighest, nil)
	if len(got) != 2 {
		t.Fatalf("every eligible user gets a row, got %d", len(got))
	}
	if got[1].User.ID != 2 || got[1].Scores[0] != 0 || got[1].Scores[1] != 0 {
		t.Fatalf("user without jobs must score 0: %+v", got[1])
	}
	if len(got[0].Scores) != 2 {
		t.Fatalf("scores must cover every scoped problem")
	}
}
