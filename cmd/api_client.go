package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/server"
	"github.com/josephgoksu/quill/internal/taskgraph"
)

// apiClient calls a running `quill serve`. Commands use it when --server is
// set so they act on the jobs owned by that process.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) (*apiClient, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	return &apiClient{
		base: strings.TrimRight(u.String(), "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e server.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("server: %s", e.Error)
		}
		return fmt.Errorf("server: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *apiClient) stop(ctx context.Context, id string) (string, error) {
	var r server.MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/stop-task/"+url.PathEscape(id), &r)
	return r.Message, err
}

func (c *apiClient) delete(ctx context.Context, id string) (string, error) {
	var r server.MessageResponse
	err := c.do(ctx, http.MethodDelete, "/api/delete-task/"+url.PathEscape(id), &r)
	return r.Message, err
}

func (c *apiClient) reload(ctx context.Context) (string, error) {
	var r server.MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/reload", &r)
	return r.Message, err
}

func (c *apiClient) status(ctx context.Context, id string) (jobs.StatusInfo, error) {
	var st jobs.StatusInfo
	err := c.do(ctx, http.MethodGet, "/api/status/"+url.PathEscape(id), &st)
	return st, err
}

// taskGraph fetches a task's tree. The server may send the tree itself or
// a flat node list.
func (c *apiClient) taskGraph(ctx context.Context, id string) (*taskgraph.Node, error) {
	var r struct {
		TaskGraph json.RawMessage `json:"taskGraph"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/task-graph/"+url.PathEscape(id), &r); err != nil {
		return nil, err
	}
	if len(r.TaskGraph) == 0 || string(r.TaskGraph) == "null" {
		return nil, nil
	}
	return taskgraph.Parse(r.TaskGraph)
}
