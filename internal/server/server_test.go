package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/policy"
	"github.com/josephgoksu/quill/internal/results"
	"github.com/josephgoksu/quill/internal/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedPerformer writes a single section once gate is closed.
type gatedPerformer struct {
	gate chan struct{}
}

func (p *gatedPerformer) Perform(ctx context.Context, action graph.Action, n *graph.Node) (graph.Outcome, error) {
	switch action {
	case graph.ActionPlan:
		if n.Outer != nil {
			return graph.Outcome{Plan: []graph.PlanItem{}}, nil
		}
		return graph.Outcome{Plan: []graph.PlanItem{
			{ID: "1", Goal: "the fox", TaskType: graph.TaskWrite, Length: "100", Dependency: []graph.FlexString{}},
		}}, nil
	case graph.ActionExecute:
		if p.gate != nil {
			select {
			case <-p.gate:
			case <-ctx.Done():
				return graph.Outcome{}, ctx.Err()
			}
		}
		return graph.Outcome{Result: "Once there was a fox."}, nil
	case graph.ActionFinalAggregate:
		return graph.Outcome{Result: "Once there was a fox."}, nil
	}
	return graph.Outcome{}, nil
}

func (p *gatedPerformer) Agent(graph.Action) string { return "gated" }

type testEnv struct {
	srv  *Server
	http *httptest.Server
	jobs *jobs.Manager
	rs   *results.Store
}

func newTestEnv(t *testing.T, perf graph.Performer) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	index, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	audit := policy.NewAuditStore(index.DB())
	pol, err := policy.NewEngine(context.Background(), policy.EngineConfig{
		Fs:              afero.NewMemMapFs(),
		MaxPromptLength: 500,
		Audit:           audit,
	})
	require.NoError(t, err)

	rs := results.New(afero.NewMemMapFs(), "/results")
	m, err := jobs.New(jobs.Options{
		Results: rs,
		Index:   index,
		Policy:  pol,
		Audit:   audit,
		Logger:  logger,
		NewPerformer: func(context.Context, *jobs.Plan) (graph.Performer, error) {
			return perf, nil
		},
	})
	require.NoError(t, err)

	srv, err := New(m, Options{
		AllowedOrigins: []string{"http://localhost:5173"},
		PollInterval:   50 * time.Millisecond,
		Audit:          audit,
		Logger:         logger,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
		_ = m.Shutdown(ctx)
	})
	return &testEnv{srv: srv, http: ts, jobs: m, rs: rs}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *testEnv) startStory(t *testing.T) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/api/generate-story", map[string]any{
		"prompt":  "Write a fable about a fox",
		"model":   "gpt-4o",
		"apiKeys": map[string]string{"openai": "sk-test"},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "started", body["status"])
	id, _ := body["taskId"].(string)
	require.True(t, strings.HasPrefix(id, "story-"), id)
	return id
}

func (e *testEnv) wait(t *testing.T, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := e.jobs.Wait(ctx, id)
	require.NoError(t, err)
}

func TestPing(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})
	code, body := e.do(t, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "API server is running", body["message"])
	assert.Equal(t, APIVersion, body["version"])
}

func TestGenerateStory_ResultAndHistory(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})
	id := e.startStory(t)
	e.wait(t, id)

	code, body := e.do(t, http.MethodGet, "/api/status/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "gpt-4o", body["model"])

	code, body = e.do(t, http.MethodGet, "/api/result/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Once there was a fox.", body["result"])

	code, body = e.do(t, http.MethodGet, "/api/task-graph/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	tree, ok := body["taskGraph"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Write a fable about a fox", tree["goal"])

	code, body = e.do(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, code)
	history, ok := body["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, id, entry["taskId"])
	assert.Equal(t, "story", entry["type"])

	code, body = e.do(t, http.MethodGet, "/api/decisions/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["decisions"], 1)
}

func TestGenerate_BadRequests(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})

	tests := []struct {
		name string
		path string
		body any
	}{
		{"empty prompt", "/api/generate-story", map[string]any{"prompt": " ", "model": "gpt-4o"}},
		{"missing model", "/api/generate-report", map[string]any{"prompt": "GPU market"}},
		{"unknown model", "/api/generate-story", map[string]any{"prompt": "a fox", "model": "no-such-model"}},
		{"not json", "/api/generate-story", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "error", body["status"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestTaskLookupErrors(t *testing.T) {
	gate := make(chan struct{})
	e := newTestEnv(t, &gatedPerformer{gate: gate})
	defer close(gate)
	running := e.startStory(t)

	tests := []struct {
		name string
		path string
		code int
		msg  string
	}{
		{"invalid id", "/api/status/bad.id", http.StatusBadRequest, "Invalid task ID format"},
		{"unknown task", "/api/status/story-missing", http.StatusNotFound, "Task not found"},
		{"unknown result", "/api/result/story-missing", http.StatusNotFound, "Task not found"},
		{"result not ready", "/api/result/" + running, http.StatusBadRequest, "Task result not available"},
		{"invalid decisions id", "/api/decisions/bad.id", http.StatusBadRequest, "Invalid task ID format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestStopTask(t *testing.T) {
	gate := make(chan struct{})
	e := newTestEnv(t, &gatedPerformer{gate: gate})
	defer close(gate)
	id := e.startStory(t)

	code, body := e.do(t, http.MethodPost, "/api/stop-task/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Task "+id+" has been stopped", body["message"])
	e.wait(t, id)

	_, body = e.do(t, http.MethodPost, "/api/stop-task/"+id, nil)
	assert.Equal(t, "Task "+id+" is already stopped", body["message"])

	_, body = e.do(t, http.MethodGet, "/api/result/"+id, nil)
	assert.Equal(t, jobs.StoppedResult, body["result"])
}

func TestDeleteAndReload(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})
	keep := e.startStory(t)
	drop := e.startStory(t)
	e.wait(t, keep)
	e.wait(t, drop)

	code, body := e.do(t, http.MethodDelete, "/api/delete-task/"+drop, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Task "+drop+" deleted successfully", body["message"])

	code, _ = e.do(t, http.MethodGet, "/api/status/"+drop, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = e.do(t, http.MethodPost, "/api/reload", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Task storage reloaded", body["message"])
	assert.EqualValues(t, 1, body["taskCount"])
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})

	tests := []struct {
		name   string
		origin string
		code   int
		allow  string
	}{
		{"allowed", "http://localhost:5173", http.StatusNoContent, "http://localhost:5173"},
		{"blocked", "http://evil.example", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/generate-story", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			e.srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.allow, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

type socketEvent struct {
	Name string
	Data json.RawMessage
}

func readRaw(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

// dial opens a WebSocket-only Socket.IO connection on the default namespace.
func dial(t *testing.T, e *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	open := readRaw(t, conn)
	require.True(t, strings.HasPrefix(open, "0{"), open)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("40")))
	ack := readRaw(t, conn)
	require.True(t, strings.HasPrefix(ack, "40{"), ack)
	return conn
}

func parseEvent(t *testing.T, packet string) socketEvent {
	t.Helper()
	require.True(t, strings.HasPrefix(packet, "42"), packet)
	name, data, err := eventArgs(json.RawMessage(packet[2:]))
	require.NoError(t, err)
	return socketEvent{Name: name, Data: data}
}

// readEvent skips heartbeats and noops until the next event.
func readEvent(t *testing.T, conn *websocket.Conn) socketEvent {
	t.Helper()
	for {
		msg := readRaw(t, conn)
		switch {
		case msg == "2":
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("3")))
		case strings.HasPrefix(msg, "42"):
			return parseEvent(t, msg)
		}
	}
}

// readUntil skips events until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(socketEvent) bool) socketEvent {
	t.Helper()
	for {
		ev := readEvent(t, conn)
		if match(ev) {
			return ev
		}
	}
}

func emitEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	b, err := json.Marshal([]any{event, data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, append([]byte("42"), b...)))
}

func subscribeStatus(t *testing.T, ev socketEvent) SubscriptionStatus {
	t.Helper()
	require.Equal(t, EventSubscriptionStatus, ev.Name)
	var st SubscriptionStatus
	require.NoError(t, json.Unmarshal(ev.Data, &st))
	return st
}

func TestWebSocket_ConnectAndBadSubscribe(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})
	conn := dial(t, e)

	ev := readEvent(t, conn)
	assert.Equal(t, EventConnectionTest, ev.Name)
	assert.JSONEq(t, `{"message":"Connected successfully to the server"}`, string(ev.Data))

	emitEvent(t, conn, EventSubscribe, map[string]string{})
	ev = readEvent(t, conn)
	assert.Equal(t, EventSubscriptionStatus, ev.Name)
	assert.JSONEq(t, `{"status":"error","taskId":null,"message":"No taskId provided"}`, string(ev.Data))

	emitEvent(t, conn, EventSubscribe, SubscribeData{TaskID: "../etc"})
	st := subscribeStatus(t, readEvent(t, conn))
	assert.Equal(t, "error", st.Status)
	assert.Equal(t, "Invalid task ID format", st.Message)

	emitEvent(t, conn, EventSubscribe, "story-1")
	st = subscribeStatus(t, readEvent(t, conn))
	assert.Equal(t, "error", st.Status)
	assert.Equal(t, "Invalid payload", st.Message)
}

func TestWebSocket_SubscribeFollowsTask(t *testing.T) {
	gate := make(chan struct{})
	e := newTestEnv(t, &gatedPerformer{gate: gate})
	id := e.startStory(t)

	conn := dial(t, e)
	readEvent(t, conn) // connection_test

	emitEvent(t, conn, EventSubscribe, SubscribeData{TaskID: id})
	st := subscribeStatus(t, readEvent(t, conn))
	assert.Equal(t, "subscribed", st.Status)
	require.NotNil(t, st.TaskID)
	assert.Equal(t, id, *st.TaskID)

	ev := readEvent(t, conn)
	require.Equal(t, EventTaskUpdate, ev.Name)
	var up TaskUpdate
	require.NoError(t, json.Unmarshal(ev.Data, &up))
	assert.Equal(t, id, up.TaskID)
	assert.Empty(t, up.Status)
	require.NotNil(t, up.TaskGraph)

	assert.True(t, e.srv.monitor.Watching(id))
	assert.Equal(t, 1, e.srv.hub.followers(id))

	close(gate)
	final := readUntil(t, conn, func(ev socketEvent) bool {
		var u TaskUpdate
		return ev.Name == EventTaskUpdate && json.Unmarshal(ev.Data, &u) == nil && u.Status != ""
	})
	require.NoError(t, json.Unmarshal(final.Data, &up))
	assert.Equal(t, store.StatusCompleted, up.Status)
	assert.Equal(t, "Write a fable about a fox", up.TaskGraph.Goal)
}

func TestWebSocket_StopPushesUpdate(t *testing.T) {
	gate := make(chan struct{})
	e := newTestEnv(t, &gatedPerformer{gate: gate})
	defer close(gate)
	id := e.startStory(t)

	conn := dial(t, e)
	readEvent(t, conn)
	emitEvent(t, conn, EventSubscribe, SubscribeData{TaskID: id})
	readEvent(t, conn) // subscription_status
	readEvent(t, conn) // initial task_update

	code, _ := e.do(t, http.MethodPost, "/api/stop-task/"+id, nil)
	require.Equal(t, http.StatusOK, code)

	ev := readUntil(t, conn, func(ev socketEvent) bool {
		var u TaskUpdate
		return ev.Name == EventTaskUpdate && json.Unmarshal(ev.Data, &u) == nil && u.Message != ""
	})
	var up TaskUpdate
	require.NoError(t, json.Unmarshal(ev.Data, &up))
	assert.Equal(t, store.StatusStopped, up.Status)
	assert.Equal(t, "Task was stopped by user", up.Message)
}

func TestWebSocket_DisconnectUnwatches(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})
	conn := dial(t, e)
	readEvent(t, conn)

	emitEvent(t, conn, EventSubscribe, SubscribeData{TaskID: "story-later"})
	readEvent(t, conn)
	ev := readEvent(t, conn)
	var up TaskUpdate
	require.NoError(t, json.Unmarshal(ev.Data, &up))
	assert.Equal(t, "Task is initializing...", up.TaskGraph.Goal)
	require.True(t, e.srv.monitor.Watching("story-later"))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !e.srv.monitor.Watching("story-later") }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return e.srv.eio.count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ResubscribeIdempotent(t *testing.T) {
	gate := make(chan struct{})
	e := newTestEnv(t, &gatedPerformer{gate: gate})
	defer close(gate)
	id := e.startStory(t)

	conn := dial(t, e)
	readEvent(t, conn)

	for i := 0; i < 2; i++ {
		emitEvent(t, conn, EventSubscribe, SubscribeData{TaskID: id})
		st := subscribeStatus(t, readEvent(t, conn))
		assert.Equal(t, "subscribed", st.Status)
		ev := readEvent(t, conn)
		assert.Equal(t, EventTaskUpdate, ev.Name)
	}
	assert.Equal(t, 1, e.srv.hub.followers(id))
	assert.True(t, e.srv.monitor.Watching(id))
}

func TestWebSocket_ReconnectResubscribes(t *testing.T) {
	gate := make(chan struct{})
	e := newTestEnv(t, &gatedPerformer{gate: gate})
	id := e.startStory(t)

	first := dial(t, e)
	readEvent(t, first)
	emitEvent(t, first, EventSubscribe, SubscribeData{TaskID: id})
	readEvent(t, first)
	readEvent(t, first)
	require.NoError(t, first.Close())
	assert.Eventually(t, func() bool { return e.srv.hub.followers(id) == 0 }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, e)
	readEvent(t, second)
	emitEvent(t, second, EventSubscribe, SubscribeData{TaskID: id})
	st := subscribeStatus(t, readEvent(t, second))
	assert.Equal(t, "subscribed", st.Status)
	readEvent(t, second) // initial task_update
	assert.Equal(t, 1, e.srv.hub.followers(id))
	assert.True(t, e.srv.monitor.Watching(id))

	close(gate)
	final := readUntil(t, second, func(ev socketEvent) bool {
		var u TaskUpdate
		return ev.Name == EventTaskUpdate && json.Unmarshal(ev.Data, &u) == nil && u.Status != ""
	})
	var up TaskUpdate
	require.NoError(t, json.Unmarshal(final.Data, &up))
	assert.Equal(t, store.StatusCompleted, up.Status)
}

func TestWebSocket_UnknownNamespaceRejected(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})
	conn := dial(t, e)
	readEvent(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("40/admin,")))
	assert.Equal(t, `44/admin,{"message":"Invalid namespace"}`, readRaw(t, conn))
}

var pollClient = &http.Client{Timeout: 5 * time.Second}

func pollURL(e *testEnv, sid string) string {
	u := e.http.URL + "/socket.io/?EIO=4&transport=polling"
	if sid != "" {
		u += "&sid=" + sid
	}
	return u
}

func pollGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := pollClient.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func pollPost(t *testing.T, url, body string) {
	t.Helper()
	resp, err := pollClient.Post(url, "text/plain;charset=UTF-8", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	require.Equal(t, "ok", string(b))
}

func TestSocketIO_PollingThenUpgrade(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})

	code, body := pollGet(t, pollURL(e, ""))
	require.Equal(t, http.StatusOK, code)
	require.True(t, strings.HasPrefix(body, "0"), body)
	var hs handshake
	require.NoError(t, json.Unmarshal([]byte(body[1:]), &hs))
	require.NotEmpty(t, hs.SID)
	assert.Equal(t, []string{"websocket"}, hs.Upgrades)
	assert.Equal(t, int64(25000), hs.PingInterval)
	sid := hs.SID

	pollPost(t, pollURL(e, sid), "40")
	_, body = pollGet(t, pollURL(e, sid))
	packets := strings.Split(body, "\x1e")
	require.Len(t, packets, 2, body)
	assert.True(t, strings.HasPrefix(packets[0], "40{"), packets[0])
	assert.Equal(t, EventConnectionTest, parseEvent(t, packets[1]).Name)

	pollPost(t, pollURL(e, sid), `42["subscribe_to_task",{"taskId":"story-poll"}]`)
	_, body = pollGet(t, pollURL(e, sid))
	packets = strings.Split(body, "\x1e")
	require.Len(t, packets, 2, body)
	assert.Equal(t, "subscribed", subscribeStatus(t, parseEvent(t, packets[0])).Status)
	assert.Equal(t, EventTaskUpdate, parseEvent(t, packets[1]).Name)

	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/socket.io/?EIO=4&transport=websocket&sid=" + sid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("2probe")))
	assert.Equal(t, "3probe", readRaw(t, conn))

	_, body = pollGet(t, pollURL(e, sid))
	assert.Equal(t, "6", body)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("5")))

	emitEvent(t, conn, EventSubscribe, SubscribeData{TaskID: "story-poll"})
	assert.Equal(t, "subscribed", subscribeStatus(t, readEvent(t, conn)).Status)
	assert.Equal(t, 1, e.srv.hub.followers("story-poll"))

	code, _ = pollGet(t, pollURL(e, sid))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSocketIO_HandshakeErrors(t *testing.T) {
	e := newTestEnv(t, &gatedPerformer{})

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"old protocol", "?EIO=3&transport=polling", eioErrUnsupported},
		{"unknown transport", "?EIO=4&transport=flash", eioErrUnknownTransport},
		{"unknown session", "?EIO=4&transport=polling&sid=nope", eioErrUnknownSID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := pollGet(t, e.http.URL+"/socket.io/"+tt.query)
			assert.Equal(t, http.StatusBadRequest, status)
			var out struct {
				Code int `json:"code"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &out))
			assert.Equal(t, tt.code, out.Code)
		})
	}
}

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		in      string
		typ     byte
		nsp     string
		ack     string
		data    string
		wantErr bool
	}{
		{in: "0", typ: sioConnect, nsp: "/"},
		{in: `0{"token":"x"}`, typ: sioConnect, nsp: "/", data: `{"token":"x"}`},
		{in: `2["subscribe_to_task",{"taskId":"a"}]`, typ: sioEvent, nsp: "/", data: `["subscribe_to_task",{"taskId":"a"}]`},
		{in: `212["ping"]`, typ: sioEvent, nsp: "/", ack: "12", data: `["ping"]`},
		{in: `0/admin,`, typ: sioConnect, nsp: "/admin"},
		{in: `2/admin,3["x"]`, typ: sioEvent, nsp: "/admin", ack: "3", data: `["x"]`},
		{in: `51-["x",{"_placeholder":true,"num":0}]`, wantErr: true},
		{in: `2["x"`, wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		p, err := decodePacket(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.typ, p.Type, tt.in)
		assert.Equal(t, tt.nsp, p.Namespace, tt.in)
		assert.Equal(t, tt.ack, p.AckID, tt.in)
		assert.Equal(t, tt.data, string(p.Data), tt.in)
	}
}

// recordingWatcher tracks which tasks are watched.
type recordingWatcher struct {
	mu      sync.Mutex
	watched map[string]bool
}

func (w *recordingWatcher) Watch(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched[id] = true
}

func (w *recordingWatcher) Unwatch(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, id)
}

func (w *recordingWatcher) isWatched(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[id]
}

func newTestSession() *session {
	return &session{out: make(chan string, 8), closed: make(chan struct{})}
}

func TestHub_WatchMatchesFollowers(t *testing.T) {
	w := &recordingWatcher{watched: map[string]bool{}}
	h := newHub(slog.New(slog.NewTextHandler(io.Discard, nil)), w)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := newTestSession()
			c, fresh := h.add(sess)
			assert.True(t, fresh)
			h.subscribe(c, "story-1")
			h.remove(sess)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.followers("story-1"))
	assert.False(t, w.isWatched("story-1"))

	sess := newTestSession()
	c, _ := h.add(sess)
	again, fresh := h.add(sess)
	assert.False(t, fresh)
	assert.Same(t, c, again)
	assert.True(t, h.subscribe(c, "story-1"))
	assert.False(t, h.subscribe(c, "story-1"))
	assert.True(t, w.isWatched("story-1"))

	h.remove(sess)
	assert.False(t, w.isWatched("story-1"))
}

func TestMonitor_PollsNodeChanges(t *testing.T) {
	rs := results.New(afero.NewMemMapFs(), "/results")
	require.NoError(t, rs.Create(results.Input{ID: "story-1", Prompt: "p", Kind: "story", CreatedAt: time.Now()}))

	var (
		mu      sync.Mutex
		changed []string
	)
	mon := NewMonitor(rs, 20*time.Millisecond, func(id string) {
		mu.Lock()
		changed = append(changed, id)
		mu.Unlock()
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mon.Start()
	defer mon.Close()

	mon.Watch("story-1")
	mon.Watch("story-1")

	root := graph.NewRoot(graph.TaskInfo{ID: "", Goal: "p", TaskType: graph.TaskWrite})
	require.NoError(t, rs.Checkpoint("story-1", root, nil))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "story-1", changed[0])
	mu.Unlock()

	mon.Unwatch("story-1")
	assert.False(t, mon.Watching("story-1"))
}
