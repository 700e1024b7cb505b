package webui

import (
	"errors"
	"sort"
	"sync"
	"time"

	"minutes/internal/tempfile"
)

// JobStatus is the lifecycle state of an upload job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobView is the JSON shape returned by GET /api/jobs/{id}.
type JobView struct {
	ID         string     `json:"id"`
	InputName  string     `json:"input_name"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message"`
	Speakers   int        `json:"speakers"`
	Segments   int        `json:"segments"`
	SizeBytes  int64      `json:"size_bytes"`
	Warning    string     `json:"warning,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

var (
	errJobActive    = errors.New("another job is running")
	errShuttingDown = errors.New("server is shutting down")
)

type job struct {
	view   JobView
	report string
	temps  *tempfile.Set
}

// registry holds upload jobs in memory. At most one job runs at a time.
// Every started job is counted in running until done is called, and no job
// starts once shutdown has begun.
type registry struct {
	mu      sync.Mutex
	jobs    map[string]*job
	active  string
	closed  bool
	running sync.WaitGroup
	now     func() time.Time
}

func newRegistry(now func() time.Time) *registry {
	if now == nil {
		now = time.Now
	}
	return &registry{jobs: make(map[string]*job), now: now}
}

// busy reports whether a job is currently running.
func (r *registry) busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != ""
}

// start registers a running job. The caller must call done once the job's
// goroutine returns.
func (r *registry) start(id, inputName string, size int64, warning string, temps *tempfile.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errShuttingDown
	}
	if r.active != "" {
		return errJobActive
	}
	r.running.Add(1)
	r.active = id
	r.jobs[id] = &job{
		view: JobView{
			ID:        id,
			InputName: inputName,
			Status:    JobRunning,
			Message:   "アップロード完了",
			SizeBytes: size,
			Warning:   warning,
			CreatedAt: r.now(),
		},
		temps: temps,
	}
	return nil
}

func (r *registry) done() {
	r.running.Done()
}

// shutdown refuses new jobs and waits for the started ones to call done.
func (r *registry) shutdown() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.running.Wait()
}

func (r *registry) progress(id string, percent int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok && j.view.Status == JobRunning {
		if percent > j.view.Progress {
			j.view.Progress = percent
		}
		j.view.Message = message
	}
}

func (r *registry) succeed(id, report string, speakers, segments int) {
	r.finish(id, func(j *job) {
		j.view.Status = JobSucceeded
		j.view.Progress = 100
		j.view.Message = "処理完了！"
		j.view.Speakers = speakers
		j.view.Segments = segments
		j.report = report
	})
}

func (r *registry) fail(id, message string) {
	r.finish(id, func(j *job) {
		j.view.Status = JobFailed
		j.view.Message = "エラーが発生しました"
		j.view.Error = message
	})
}

func (r *registry) finish(id string, apply func(*job)) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	r.mu.Unlock()
	if ok {
		_ = j.temps.Cleanup()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		apply(j)
		finished := r.now()
		j.view.FinishedAt = &finished
	}
	if r.active == id {
		r.active = ""
	}
}

// get returns a snapshot of the job and its report.
func (r *registry) get(id string) (JobView, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return JobView{}, "", false
	}
	return j.view, j.report, true
}

// list returns snapshots ordered by creation time, newest first.
func (r *registry) list() []JobView {
	r.mu.Lock()
	views := make([]JobView, 0, len(r.jobs))
	for _, j := range r.jobs {
		views = append(views, j.view)
	}
	r.mu.Unlock()
	sort.Slice(views, func(i, k int) bool { return views[i].CreatedAt.After(views[k].CreatedAt) })
	return views
}

// prune drops finished jobs older than ttl and returns how many were removed.
func (r *registry) prune(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)
	var expired []*job
	r.mu.Lock()
	for id, j := range r.jobs {
		if j.view.FinishedAt == nil || j.view.FinishedAt.After(cutoff) {
			continue
		}
		expired = append(expired, j)
		delete(r.jobs, id)
	}
	r.mu.Unlock()
	for _, j := range expired {
		_ = j.temps.Cleanup()
	}
	return len(expired)
}
