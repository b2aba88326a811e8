// Package status reports task status transitions back to the controller.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/loykin/forgekeeper/internal/metrics"
	"github.com/loykin/forgekeeper/internal/model"
)

// Update is a single task status transition.
type Update struct {
	ServerID string
	TaskID   string
	Status   model.TaskStatus
	Result   string
}

// Notifier delivers status updates. Notify reports whether the controller
// accepted the update; it never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, u Update) bool
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, u Update) bool

func (f NotifierFunc) Notify(ctx context.Context, u Update) bool { return f(ctx, u) }

// Config controls the HTTP reporter.
type Config struct {
	APIHost    string
	Timeout    time.Duration
	RetryMax   int
	HTTPClient *http.Client
}

// Reporter PATCHes task updates to the controller's REST API.
type Reporter struct {
	apiHost string
	timeout time.Duration
	client  *retryablehttp.Client
	log     *slog.Logger
}

type patchBody struct {
	Status model.TaskStatus `json:"status"`
	Result string           `json:"result,omitempty"`
}

func NewReporter(cfg Config, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reporter{
		apiHost: strings.TrimRight(cfg.APIHost, "/"),
		timeout: timeout,
		client:  client,
		log:     log,
	}
}

// URL is the task endpoint for serverID/taskID.
func (r *Reporter) URL(serverID, taskID string) string {
	return fmt.Sprintf("%s/api/v1/minecraft/server/%s/tasks/%s", r.apiHost, url.PathEscape(serverID), url.PathEscape(taskID))
}

// Notify implements Notifier.
func (r *Reporter) Notify(ctx context.Context, u Update) bool {
	err := r.send(ctx, u)
	metrics.IncNotification(string(u.Status), err == nil)
	if err != nil {
		r.log.Warn("task status notification failed",
			"server", u.ServerID, "task", u.TaskID, "status", u.Status, "error", err)
		return false
	}
	r.log.Debug("task status notified", "server", u.ServerID, "task", u.TaskID, "status", u.Status)
	return true
}

func (r *Reporter) send(ctx context.Context, u Update) error {
	// the caller's context may already be done (e.g. on shutdown); the final
	// report must still go out within the reporter's own budget
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	body, err := json.Marshal(patchBody{Status: u.Status, Result: u.Result})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPatch, r.URL(u.ServerID, u.TaskID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrNotificationFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", model.ErrNotificationFailed, resp.Status)
	}
	return nil
}

// Discard is a Notifier that drops every update and reports success.
var Discard Notifier = NotifierFunc(func(context.Context, Update) bool { return true })
