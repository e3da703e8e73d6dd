package server

import (
	"net/http"

	"github.com/josephgoksu/quill/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", s.handlePing)
	mux.HandleFunc("POST /api/generate-story", s.handleGenerateStory)
	mux.HandleFunc("POST /api/generate-report", s.handleGenerateReport)
	mux.HandleFunc("GET /api/status/{taskId}", s.handleStatus)
	mux.HandleFunc("GET /api/result/{taskId}", s.handleResult)
	mux.HandleFunc("GET /api/task-graph/{taskId}", s.handleTaskGraph)
	mux.HandleFunc("GET /api/workspace/{taskId}", s.handleWorkspace)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/reload", s.handleReload)
	mux.HandleFunc("DELETE /api/delete-task/{taskId}", s.handleDeleteTask)
	mux.HandleFunc("POST /api/stop-task/{taskId}", s.handleStopTask)
	mux.HandleFunc("GET /api/decisions/{taskId}", s.handleDecisions)

	mux.Handle("/socket.io/", s.eio)
	mux.Handle("GET /metrics", metrics.Handler())

	return otelhttp.NewHandler(s.corsMiddleware(s.logRequests(mux)), "quill.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}
