package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/josephgoksu/quill/internal/taskgraph"
)

// handlePing
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeAPIJSON(w, map[string]string{
		"status":  "ok",
		"message": "API server is running",
		"version": APIVersion,
	})
}

func (s *Server) handleGenerateStory(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, config.ModeStory)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	s.generate(w, r, config.ModeReport)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, kind config.Mode) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	enableSearch := kind == config.ModeReport
	if req.EnableSearch != nil {
		enableSearch = enableSearch && *req.EnableSearch
	}

	id, err := s.jobs.Start(r.Context(), jobs.Request{
		Kind:         kind,
		Prompt:       req.Prompt,
		Model:        req.Model,
		EnableSearch: enableSearch,
		SearchEngine: req.SearchEngine,
		APIKeys:      req.APIKeys,
	})
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeAPIJSON(w, GenerateResponse{TaskID: id, Status: "started"})
}

// handleStatus
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Status(r.PathValue("taskId"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeAPIJSON(w, st)
}

// handleResult
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.jobs.Result(r.PathValue("taskId"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeAPIJSON(w, res)
}

// handleTaskGraph
func (s *Server) handleTaskGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("taskId")
	tree, err := s.jobs.TaskGraph(id)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeAPIJSON(w, TaskGraphResponse{TaskID: id, TaskGraph: tree})
}

// handleWorkspace
func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("taskId")
	text, err := s.jobs.Workspace(id)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeAPIJSON(w, WorkspaceResponse{TaskID: id, Workspace: text})
}

// handleHistory
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.jobs.History()
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeAPIJSON(w, map[string]any{"history": history})
}

// handleReload
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.jobs.Reload()
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeAPIJSON(w, MessageResponse{Status: "ok", Message: "Task storage reloaded", TaskCount: &n})
}

// handleDeleteTask
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("taskId")
	if err := s.jobs.Delete(id); err != nil {
		s.writeJobError(w, err)
		return
	}
	s.monitor.Unwatch(id)
	writeAPIJSON(w, MessageResponse{Status: "ok", Message: "Task " + id + " deleted successfully"})
}

// handleStopTask
func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	msg, err := s.jobs.Stop(r.PathValue("taskId"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeAPIJSON(w, MessageResponse{Status: "ok", Message: msg})
}

// handleDecisions lists the admission decisions recorded for a task.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("taskId")
	if !jobs.ValidTaskID(id) {
		s.writeJobError(w, jobs.ErrInvalidTaskID)
		return
	}
	if s.audit == nil {
		writeAPIError(w, http.StatusNotFound, "policy audit is disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	decisions, err := s.audit.ListDecisions(id, limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIJSON(w, map[string]any{"taskId": id, "decisions": decisions})
}

// onSocketMessage handles one Socket.IO packet from a session.
func (s *Server) onSocketMessage(sess *session, msg string) {
	p, err := decodePacket(msg)
	if err != nil {
		s.logger.Debug("bad socket.io packet", "sid", sess.id, "error", err)
		return
	}
	if p.Namespace != defaultNamespace {
		if p.Type == sioConnect {
			sess.send(encodeConnectError(p.Namespace, "Invalid namespace"))
		}
		return
	}

	switch p.Type {
	case sioConnect:
		c, fresh := s.hub.add(sess)
		sess.send(encodeConnect(c.id))
		if fresh {
			s.logger.Debug("socket client connected", "sid", sess.id)
			s.hub.emit(c, EventConnectionTest, map[string]string{"message": "Connected successfully to the server"})
		}
	case sioDisconnect:
		sess.close("client disconnect")
	case sioEvent:
		c, ok := s.hub.lookup(sess)
		if !ok {
			return
		}
		event, data, err := eventArgs(p.Data)
		if err != nil {
			s.logger.Debug("bad socket.io event", "sid", sess.id, "error", err)
			return
		}
		s.handleEvent(c, event, data)
		if p.AckID != "" {
			sess.send(encodeAck(p.AckID))
		}
	}
}

// onSocketClose forgets the client of a closed session.
func (s *Server) onSocketClose(sess *session) {
	s.hub.remove(sess)
}

func (s *Server) handleEvent(c *client, event string, data json.RawMessage) {
	switch event {
	case EventSubscribe:
		var sub SubscribeData
		if len(data) > 0 {
			if err := json.Unmarshal(data, &sub); err != nil {
				s.hub.emit(c, EventSubscriptionStatus, SubscriptionStatus{Status: "error", Message: "Invalid payload"})
				return
			}
		}
		switch {
		case sub.TaskID == "":
			s.hub.emit(c, EventSubscriptionStatus, SubscriptionStatus{Status: "error", Message: "No taskId provided"})
			return
		case !jobs.ValidTaskID(sub.TaskID):
			s.hub.emit(c, EventSubscriptionStatus, SubscriptionStatus{Status: "error", TaskID: &sub.TaskID, Message: "Invalid task ID format"})
			return
		}
		// A task may be subscribed before its directory exists, so unknown
		// ids are accepted.
		s.hub.subscribe(c, sub.TaskID)
		s.hub.emit(c, EventSubscriptionStatus, SubscriptionStatus{Status: "subscribed", TaskID: &sub.TaskID})
		s.hub.emit(c, EventTaskUpdate, s.taskUpdate(sub.TaskID))
	default:
		s.logger.Debug("unknown socket event", "event", event)
	}
}

// taskUpdate snapshots a task for task_update. Status is only filled in
// once the task is terminal.
func (s *Server) taskUpdate(id string) TaskUpdate {
	up := TaskUpdate{TaskID: id}
	tree, err := s.jobs.TaskGraph(id)
	if err != nil {
		tree = taskgraph.Placeholder("Task is initializing...")
	}
	up.TaskGraph = tree
	if st, err := s.jobs.Status(id); err == nil && st.Status != store.StatusRunning {
		up.Status = st.Status
		up.Message = st.Error
	}
	return up
}

// pushGraph is called by the monitor when a task's tree changed on disk.
func (s *Server) pushGraph(id string) {
	s.hub.broadcast(id, EventTaskUpdate, s.taskUpdate(id))
}

// onJobEvent sends the final tree of a task that just ended.
func (s *Server) onJobEvent(ev jobs.Event) {
	up := s.taskUpdate(ev.TaskID)
	up.Status = ev.Status
	if ev.Message != "" {
		up.Message = ev.Message
	}
	s.hub.broadcast(ev.TaskID, EventTaskUpdate, up)
}

// writeJobError maps job manager errors to status codes.
func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidTaskID):
		writeAPIError(w, http.StatusBadRequest, "Invalid task ID format")
	case errors.Is(err, jobs.ErrTaskNotFound):
		writeAPIError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, jobs.ErrResultNotAvailable):
		writeAPIError(w, http.StatusBadRequest, "Task result not available")
	case errors.Is(err, jobs.ErrInvalidRequest), errors.Is(err, jobs.ErrRejected):
		writeAPIError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeAPIError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeAPIJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Status: "error", Error: msg})
}
