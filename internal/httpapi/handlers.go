package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/originjudge/oj/internal/apperr"
	"github.com/originjudge/oj/internal/judge"
)

func pathID(c *gin.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, apperr.New(apperr.InvalidArgument, "invalid id %q", c.Param("id"))
	}
	return int32(id), nil
}

// sessionUserID extracts and verifies the session token, if any.
func sessionUserID(d Deps, c *gin.Context) (int32, bool, error) {
	session, err := d.Sessions.Get(c.Request, sessionName)
	if err != nil {
		return 0, false, apperr.New(apperr.InvalidArgument, "malformed session cookie")
	}
	raw, ok := session.Values["token"].(string)
	if !ok || raw == "" {
		return 0, false, nil
	}
	payload, err := d.Tokens.Parse(raw)
	if err != nil {
		return 0, false, apperr.New(apperr.InvalidArgument, "invalid token: %s", err)
	}
	return payload.UserID, true, nil
}

func createJob(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req judge.JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.New(apperr.InvalidArgument, "invalid body: %s", err))
			return
		}
		if d.RequireAuth {
			uid, ok, err := sessionUserID(d, c)
			if err != nil {
				respondError(c, err)
				return
			}
			if !ok {
				respondError(c, apperr.New(apperr.InvalidArgument, "token required"))
				return
			}
			if uid != req.UserID {
				respondError(c, apperr.New(apperr.InvalidArgument, "not your token"))
				return
			}
		}
		job, err := d.Service.SubmitJob(req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, job)
	}
}

// parseQueryTime accepts RFC 3339 or the millisecond contest format.
func parseQueryTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.000Z", s)
}

func bindJobQuery(c *gin.Context) (judge.JobQuery, error) {
	var q judge.JobQuery
	if s, ok := c.GetQuery("user_id"); ok {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return q, apperr.New(apperr.InvalidArgument, "invalid user_id %q", s)
		}
		id := int32(v)
		q.UserID = &id
	}
	if s, ok := c.GetQuery("user_name"); ok {
		q.UserName = &s
	}
	if s, ok := c.GetQuery("contest_id"); ok {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return q, apperr.New(apperr.InvalidArgument, "invalid contest_id %q", s)
		}
		id := int32(v)
		q.ContestID = &id
	}
	if s, ok := c.GetQuery("problem_id"); ok {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return q, apperr.New(apperr.InvalidArgument, "invalid problem_id %q", s)
		}
		id := int32(v)
		q.ProblemID = &id
	}
	if s, ok := c.GetQuery("language"); ok {
		q.Language = &s
	}
	if s, ok := c.GetQuery("from"); ok {
		t, err := parseQueryTime(s)
		if err != nil {
			return q, apperr.New(apperr.InvalidArgument, "invalid from %q", s)
		}
		q.From = &t
	}
	if s, ok := c.GetQuery("to"); ok {
		t, err := parseQueryTime(s)
		if err != nil {
			return q, apperr.New(apperr.InvalidArgument, "invalid to %q", s)
		}
		q.To = &t
	}
	if s, ok := c.GetQuery("state"); ok {
		st := judge.JobState(s)
		switch st {
		case judge.JobQueueing, judge.JobRunning, judge.JobFinished, judge.JobCanceled:
		default:
			return q, apperr.New(apperr.InvalidArgument, "invalid state %q", s)
		}
		q.State = &st
	}
	if s, ok := c.GetQuery("result"); ok {
		res, ok := judge.StatusFromIdent(s)
		if !ok {
			return q, apperr.New(apperr.InvalidArgument, "invalid result %q", s)
		}
		q.Result = &res
	}
	return q, nil
}

func listJobs(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := bindJobQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}
		jobs, err := d.Service.ListJobs(c.Request.Context(), q)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, jobs)
	}
}

func getJob(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		job, err := d.Service.GetJob(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func rerunJob(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		job, err := d.Service.RerunJob(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func cancelJob(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := d.Service.CancelJob(id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

func listUsers(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		users := d.Service.ListUsers()
		if name, ok := c.GetQuery("name"); ok {
			filtered := users[:0]
			for _, u := range users {
				if u.Name == name {
					filtered = append(filtered, u)
				}
			}
			users = filtered
		}
		c.JSON(http.StatusOK, users)
	}
}

type userUpdate struct {
	ID   *int32 `json:"id"`
	Name string `json:"name"`
}

func createOrUpdateUser(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var upd userUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			respondError(c, apperr.New(apperr.InvalidArgument, "invalid body: %s", err))
			return
		}
		if upd.Name == "" {
			respondError(c, apperr.New(apperr.InvalidArgument, "name is required"))
			return
		}
		var id int32
		if upd.ID != nil {
			id = *upd.ID
		}
		u, err := d.Service.CreateOrUpdateUser(c.Request.Context(), id, upd.Name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

type loginRequest struct {
	UserID *int32 `json:"user_id"`
	Name   string `json:"name"`
}

func login(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.RequireAuth {
			respondError(c, apperr.New(apperr.Internal, "authentication is disabled"))
			return
		}
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.New(apperr.InvalidArgument, "invalid body: %s", err))
			return
		}
		var user judge.User
		var ok bool
		switch {
		case req.UserID != nil:
			user, ok = d.Service.LookupUser(*req.UserID)
		case req.Name != "":
			user, ok = d.Service.LookupUserByName(req.Name)
		default:
			respondError(c, apperr.New(apperr.InvalidArgument, "user_id or name is required"))
			return
		}
		if !ok {
			respondError(c, apperr.New(apperr.NotFound, "user not found"))
			return
		}
		tok, err := d.Tokens.Issue(user.ID)
		if err != nil {
			respondError(c, apperr.New(apperr.Internal, "issue token: %s", err))
			return
		}
		session, _ := d.Sessions.New(c.Request, sessionName)
		session.Values["token"] = tok
		session.Options.MaxAge = int((10 * 24 * time.Hour).Seconds())
		if err := session.Save(c.Request, c.Writer); err != nil {
			respondError(c, apperr.New(apperr.Internal, "save session: %s", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": tok})
	}
}

func listContests(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Service.ListContests())
	}
}

type contestUpdate struct {
	ID              *int32         `json:"id"`
	Name            string         `json:"name"`
	From            judge.DateTime `json:"from"`
	To              judge.DateTime `json:"to"`
	ProblemIDs      []int32        `json:"problem_ids"`
	UserIDs         []int32        `json:"user_ids"`
	SubmissionLimit int32          `json:"submission_limit"`
}

func createOrUpdateContest(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var upd contestUpdate
		if err := c.ShouldBindJSON(&upd); err != nil {
			respondError(c, apperr.New(apperr.InvalidArgument, "invalid body: %s", err))
			return
		}
		contest := judge.Contest{
			Name:            upd.Name,
			From:            upd.From,
			To:              upd.To,
			ProblemIDs:      upd.ProblemIDs,
			UserIDs:         upd.UserIDs,
			SubmissionLimit: upd.SubmissionLimit,
		}
		hasID := upd.ID != nil
		if hasID {
			contest.ID = *upd.ID
		}
		saved, err := d.Service.CreateOrUpdateContest(c.Request.Context(), contest, hasID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
	}
}

func getContest(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		contest, ok := d.Service.GetContest(id)
		if !ok {
			respondError(c, apperr.New(apperr.NotFound, "contest %d not found", id))
			return
		}
		c.JSON(http.StatusOK, contest)
	}
}

func getRanklist(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		rule := judge.ScoringLatest
		if s, ok := c.GetQuery("scoring_rule"); ok {
			switch judge.ScoringRule(s) {
			case judge.ScoringLatest, judge.ScoringHighest:
				rule = judge.ScoringRule(s)
			default:
				respondError(c, apperr.New(apperr.InvalidArgument, "invalid scoring_rule %q", s))
				return
			}
		}
		var tb *judge.TieBreaker
		if s, ok := c.GetQuery("tie_breaker"); ok {
			switch judge.TieBreaker(s) {
			case judge.TieBreakerSubmissionTime, judge.TieBreakerSubmissionCount, judge.TieBreakerUserID:
				v := judge.TieBreaker(s)
				tb = &v
			default:
				respondError(c, apperr.New(apperr.InvalidArgument, "invalid tie_breaker %q", s))
				return
			}
		}
		rank, err := d.Service.GetRanklist(c.Request.Context(), id, rule, tb)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rank)
	}
}

func getContestProblems(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		problems, err := d.Service.GetContestProblems(id)
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]judge.ProblemDisplay, 0, len(problems))
		for _, p := range problems {
			out = append(out, p.Display())
		}
		c.JSON(http.StatusOK, out)
	}
}

func getProblem(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		display, err := d.Service.GetProblemDisplay(id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, display)
	}
}
