package service

import (
	"net/http"
	"time"

	"github.com/vireo-dev/vireo/grab"
	"github.com/vireo-dev/vireo/internal/common"
)

// Handler processes the Document a Task's request produced. It returns
// zero or more follow-up Tasks to enqueue (discovered links, pagination,
// a submitted form's result page) and an error if parsing failed.
// Handlers run on a ParserPool worker, never on a network worker, so they
// can take as long as they need without blocking in-flight requests.
type Handler func(doc *grab.Document, task *Task) ([]*Task, error)

// Task is one unit of crawl work: a named request plus the handler that
// interprets its response. Priority and ScheduleTime feed the queue's
// ordering; NetworkTryCount and TaskTryCount are independent retry
// budgets governed respectively by network_try_limit and task_try_limit.
type Task struct {
	ID   string
	Name string

	URL     string
	Request *grab.Request

	Priority     int
	ScheduleTime *time.Time

	NetworkTryCount int
	TaskTryCount    int

	Handler Handler

	// RequestConfig is applied to Request on every (re)attempt, the
	// Go-native analogue of grab.py's per-task config dict.
	RequestConfig map[string]any

	// configBackup preserves RequestConfig across a retry that mutates
	// it (e.g. a changed proxy), matching the source's practice of
	// restoring the original config before each new attempt.
	configBackup map[string]any
}

// NewTask builds a Task with a fresh ID, default priority 0, and no
// schedule (ready immediately).
func NewTask(name, url string, handler Handler) *Task {
	return &Task{
		ID:      common.NewTaskID(),
		Name:    name,
		URL:     url,
		Handler: handler,
	}
}

// WithPriority sets the task's queue priority (higher runs first).
func (t *Task) WithPriority(p int) *Task {
	t.Priority = p
	return t
}

// WithSchedule defers the task until at, instead of making it
// immediately ready.
func (t *Task) WithSchedule(at time.Time) *Task {
	t.ScheduleTime = &at
	return t
}

// WithConfig attaches a request config template applied on every attempt
// and immediately snapshots it via BackupConfig, so the first retry has
// something to restore.
func (t *Task) WithConfig(cfg map[string]any) *Task {
	t.RequestConfig = cfg
	t.BackupConfig()
	return t
}

// BackupConfig snapshots RequestConfig the first time it is called, so a
// later RestoreConfig can undo any per-attempt mutation (e.g. a retry
// policy swapping in a different proxy for one attempt only).
func (t *Task) BackupConfig() {
	if t.configBackup != nil || t.RequestConfig == nil {
		return
	}
	cp := make(map[string]any, len(t.RequestConfig))
	for k, v := range t.RequestConfig {
		cp[k] = v
	}
	t.configBackup = cp
}

// RestoreConfig resets RequestConfig to the snapshot BackupConfig took,
// undoing any mutation a failed attempt made to it.
func (t *Task) RestoreConfig() {
	if t.configBackup == nil {
		return
	}
	cp := make(map[string]any, len(t.configBackup))
	for k, v := range t.configBackup {
		cp[k] = v
	}
	t.RequestConfig = cp
}

// buildRequest returns t.Request if the caller built one explicitly,
// otherwise builds a GET request for t.URL with t.RequestConfig applied.
// Most tasks never set Request directly; it exists as an escape hatch for
// callers that need a non-GET method or a body (e.g. a task produced by
// grab.Client.Submit's form-follow-up).
func (t *Task) buildRequest() (*grab.Request, error) {
	if t.Request != nil {
		return t.Request, nil
	}
	builder := grab.NewRequest(http.MethodGet, t.URL)
	if t.RequestConfig != nil {
		builder.WithConfig(t.RequestConfig)
	}
	return builder.Build()
}

// Clone returns a shallow copy of t suitable for re-enqueueing on retry:
// same ID and handler, independent RequestConfig.
func (t *Task) Clone() *Task {
	cp := *t
	if t.RequestConfig != nil {
		cp.RequestConfig = make(map[string]any, len(t.RequestConfig))
		for k, v := range t.RequestConfig {
			cp.RequestConfig[k] = v
		}
	}
	return &cp
}
