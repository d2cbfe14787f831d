package judge

import "sort"

// ScoringRule picks a representative job per (user, problem).
type ScoringRule string

const (
	ScoringLatest  ScoringRule = "latest"
	ScoringHighest ScoringRule = "highest"
)

// choose picks the representative job among jobs for one (user, problem)
// pair. jobs must be non-empty.
func (r ScoringRule) choose(jobs []Job) Job {
	best := jobs[0]
	for _, j := range jobs[1:] {
		switch r {
		case ScoringLatest:
			if j.CreatedTime.After(best.CreatedTime) {
				best = j
			}
		default: // ScoringHighest
			if j.Score > best.Score || (j.Score == best.Score && j.CreatedTime.Before(best.CreatedTime)) {
				best = j
			}
		}
	}
	return best
}

// TieBreaker orders users whose total scores are equal.
type TieBreaker string

const (
	TieBreakerSubmissionTime  TieBreaker = "submission_time"
	TieBreakerSubmissionCount TieBreaker = "submission_count"
	TieBreakerUserID          TieBreaker = "user_id"
)

// userAggregate holds everything the ranking engine needs about one user
// within the current scope before sorting.
type userAggregate struct {
	user            User
	totalScore      float32
	scores          []float32
	earliestCreated int64 // unix nanos; 1<<62 if no submission
	submissionCount int
}

// compare implements the three named tie-breakers. A nil tb means "no
// tie-breaker given", which compares everything as equal, so all users
// with the same total share one rank.
func compare(tb *TieBreaker, a, b userAggregate) int {
	if tb == nil {
		return 0
	}
	switch *tb {
	case TieBreakerSubmissionTime:
		if a.earliestCreated < b.earliestCreated {
			return -1
		}
		if a.earliestCreated > b.earliestCreated {
			return 1
		}
		return 0
	case TieBreakerSubmissionCount:
		if a.submissionCount < b.submissionCount {
			return -1
		}
		if a.submissionCount > b.submissionCount {
			return 1
		}
		return 0
	case TieBreakerUserID:
		if a.user.ID < b.user.ID {
			return -1
		}
		if a.user.ID > b.user.ID {
			return 1
		}
		return 0
	}
	return 0
}

// Ranklist computes a ranklist for a scope (the problemIDs slice) given
// every relevant job (queue snapshot ∪ store, already fused by the
// caller) and every eligible user.
func Ranklist(users []User, problemIDs []int32, jobs []Job, rule ScoringRule, tb *TieBreaker) []Ranking {
	byUserProblem := make(map[int32]map[int32][]Job)
	countByUser := make(map[int32]int)
	for _, j := range jobs {
		if byUserProblem[j.Submission.UserID] == nil {
			byUserProblem[j.Submission.UserID] = make(map[int32][]Job)
		}
		byUserProblem[j.Submission.UserID][j.Submission.ProblemID] = append(byUserProblem[j.Submission.UserID][j.Submission.ProblemID], j)
		countByUser[j.Submission.UserID]++
	}

	aggregates := make([]userAggregate, 0, len(users))
	for _, u := range users {
		agg := userAggregate{user: u, earliestCreated: int64(1) << 62, scores: make([]float32, len(problemIDs))}
		for i, pid := range problemIDs {
			candidates := byUserProblem[u.ID][pid]
			if len(candidates) == 0 {
				continue
			}
			rep := rule.choose(candidates)
			agg.scores[i] = rep.Score
			agg.totalScore += rep.Score
			if rep.CreatedTime.UnixNano() < agg.earliestCreated {
				agg.earliestCreated = rep.CreatedTime.UnixNano()
			}
		}
		agg.submissionCount = countByUser[u.ID]
		aggregates = append(aggregates, agg)
	}

	sort.SliceStable(aggregates, func(i, j int) bool {
		a, b := aggregates[i], aggregates[j]
		if a.totalScore != b.totalScore {
			return a.totalScore > b.totalScore
		}
		return compare(tb, a, b) < 0
	})

	rankings := make([]Ranking, len(aggregates))
	for i, agg := range aggregates {
		rank := int32(i + 1)
		if i > 0 {
			prev := aggregates[i-1]
			if prev.totalScore == agg.totalScore && compare(tb, prev, agg) == 0 {
				rank = rankings[i-1].Rank
			}
		}
		rankings[i] = Ranking{User: agg.user, Rank: rank, Scores: agg.scores}
	}
	return rankings
}
