package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jjsgo/internal/common/http/middleware"
	"jjsgo/internal/judge/worker"
)

// StatusProvider is the read side of a TaskSource's recorded lifecycle
// callbacks, just enough for the status/health surface below. The
// in-memory TaskSource used by cmd/jjs-judged when no database is wired
// satisfies it directly; persistence itself is a spec Non-goal (spec
// §11's note: HTTP shape preserved as ambient surface, not backed by the
// teacher's MySQL repository).
type StatusProvider interface {
	Finished(requestID uuid.UUID) (FinishReason, bool)
	OutcomeHeaders(requestID uuid.UUID) []worker.OutcomeHeader
}

// NewHTTPServer builds the thin gin surface named in spec §11: a health
// check and a per-submission status lookup, reusing the teacher's trace
// middleware so requests carry the same trace/request id convention as
// the rest of the corpus.
func NewHTTPServer(statusProvider StatusProvider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceContextMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/submissions/:id/status", func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
			return
		}
		reason, ok := statusProvider.Finished(id)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"request_id": id, "finished": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id":      id,
			"finished":        true,
			"reason":          finishReasonName(reason),
			"outcome_headers": statusProvider.OutcomeHeaders(id),
		})
	})

	return r
}

func finishReasonName(r FinishReason) string {
	switch r {
	case FinishCompileError:
		return "compile_error"
	case FinishTestingDone:
		return "testing_done"
	default:
		return "fault"
	}
}
