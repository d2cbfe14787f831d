package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/originjudge/oj/internal/apperr"
	"github.com/originjudge/oj/internal/judge"
)

func queryContext(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/jobs?"+rawQuery, nil)
	c.Request = req
	return c
}

func TestBindJobQueryFull(t *testing.T) {
	c := queryContext(t, "user_id=3&user_name=alice&contest_id=2&problem_id=5&language=Rust&state=finished&result=accepted&from=2024-01-01T00:00:00.000Z&to=2024-12-31T00:00:00.000Z")
	q, err := bindJobQuery(c)
	if err != nil {
		t.Fatalf("bindJobQuery: %v", err)
	}
	if q.UserID == nil || *q.UserID != 3 {
		t.Fatalf("user_id = %v", q.UserID)
	}
	if q.UserName == nil || *q.UserName != "alice" {
		t.Fatalf("user_name = %v", q.UserName)
	}
	if q.State == nil || *q.State != judge.JobFinished {
		t.Fatalf("state = %v", q.State)
	}
	if q.Result == nil || *q.Result != judge.StatusAccepted {
		t.Fatalf("result = %v", q.Result)
	}
	if q.From == nil || q.To == nil || !q.From.Before(*q.To) {
		t.Fatalf("from/to = %v/%v", q.From, q.To)
	}
}

func TestBindJobQueryEmpty(t *testing.T) {
	q, err := bindJobQuery(queryContext(t, ""))
	if err != nil {
		t.Fatalf("bindJobQuery: %v", err)
	}
	if q.UserID != nil || q.State != nil || q.Result != nil || q.From != nil {
		t.Fatalf("empty query must bind nothing: %+v", q)
	}
}

func TestBindJobQueryInvalid(t *testing.T) {
	for _, raw := range []string{
		"user_id=abc",
		"contest_id=1.5",
		"state=bogus",
		"result=not_a_status",
		"from=yesterday",
	} {
		if _, err := bindJobQuery(queryContext(t, raw)); err == nil {
			t.Errorf("query %q must fail to bind", raw)
		}
	}
}

func TestRespondErrorWireShape(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	respondError(c, apperr.New(apperr.NotFound, "job %d not found", 7))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Code    int    `json:"code"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.Reason != "not_found" || body.Message != "job 7 not found" || body.Code != 3 {
		t.Fatalf("body = %+v", body)
	}
}

func TestRespondErrorWrapsUnknown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	respondError(c, http.ErrBodyNotAllowed)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unknown errors map to 500, got %d", rec.Code)
	}
}
