package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestHTTPServerHealthz(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	r := NewHTTPServer(NewInMemoryTaskSource())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHTTPServerSubmissionStatus(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	ts := NewInMemoryTaskSource()
	r := NewHTTPServer(ts)

	reqID := uuid.New()

	notFoundReq := httptest.NewRequest(http.MethodGet, "/submissions/"+reqID.String()+"/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, notFoundReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("unfinished submission status = %d, want %d", rec.Code, http.StatusOK)
	}
	var unfinished struct {
		Finished bool `json:"finished"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &unfinished); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if unfinished.Finished {
		t.Fatalf("a never-finished submission must report finished=false")
	}

	if err := ts.SetFinished(context.Background(), reqID, FinishTestingDone); err != nil {
		t.Fatalf("SetFinished: %v", err)
	}

	doneReq := httptest.NewRequest(http.MethodGet, "/submissions/"+reqID.String()+"/status", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, doneReq)
	var done struct {
		Finished bool   `json:"finished"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &done); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !done.Finished || done.Reason != "testing_done" {
		t.Fatalf("finished submission status = %+v, want finished=true reason=testing_done", done)
	}

	badReq := httptest.NewRequest(http.MethodGet, "/submissions/not-a-uuid/status", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, badReq)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid submission id status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
