package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/gocoro/pkg/coro"
	"github.com/me/gocoro/pkg/model"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// taskQuery is the parsed query string of GET /tasks.
type taskQuery struct {
	limit  int
	offset int
	state  coro.TaskState
	tag    string
	byTag  bool // ?tag= present; an empty tag matches untagged tasks
}

func (q taskQuery) match(info coro.TaskInfo) bool {
	if q.byTag && info.Tag != q.tag {
		return false
	}
	return q.state == "" || info.State == q.state
}

// parseTaskQuery reads ?limit, ?offset, ?state and ?tag. Out-of-range page
// bounds are clamped; non-numeric ones are rejected.
func parseTaskQuery(r *http.Request) (taskQuery, *model.APIError) {
	v := r.URL.Query()
	q := taskQuery{
		limit: defaultPageSize,
		state: coro.TaskState(v.Get("state")),
		tag:   v.Get("tag"),
		byTag: v.Has("tag"),
	}
	var errs []model.FieldError
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &q.limit}, {"offset", &q.offset}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, model.FieldError{Field: p.name, Message: "must be an integer"})
			continue
		}
		*p.dst = n
	}
	if len(errs) > 0 {
		return q, model.NewValidationError("invalid list options", errs...)
	}
	if q.limit <= 0 {
		q.limit = defaultPageSize
	}
	q.limit = min(q.limit, maxPageSize)
	q.offset = max(q.offset, 0)
	return q, nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	q, apiErr := parseTaskQuery(r)
	if apiErr != nil {
		respondError(w, reqID, apiErr)
		return
	}

	var tasks []coro.TaskInfo
	for _, info := range s.sched.Snapshot() {
		if q.match(info) {
			tasks = append(tasks, info)
		}
	}

	total := len(tasks)
	start := min(q.offset, total)
	end := min(start+q.limit, total)
	page := tasks[start:end]
	if page == nil {
		page = []coro.TaskInfo{}
	}
	respondList(w, reqID, page, &Pagination{
		Total:   total,
		Limit:   q.limit,
		Offset:  q.offset,
		HasMore: end < total,
	})
}

// taskFromPath resolves the {id} parameter to a live task, writing the error
// response itself when it cannot.
func (s *Server) taskFromPath(w http.ResponseWriter, r *http.Request) (coro.TaskInfo, bool) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	h, ok := coro.ParseHandle(id)
	if !ok {
		respondError(w, reqID, model.NewValidationError("invalid task id", model.FieldError{Field: "id", Message: "expected task-N or N"}))
		return coro.TaskInfo{}, false
	}
	info, ok := s.sched.Task(h)
	if !ok {
		respondError(w, reqID, model.NewNotFoundError("task", id))
		return coro.TaskInfo{}, false
	}
	return info, true
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if info, ok := s.taskFromPath(w, r); ok {
		respondOK(w, RequestIDFromContext(r.Context()), info)
	}
}

func (s *Server) handleKillTask(w http.ResponseWriter, r *http.Request) {
	info, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	s.sched.KillTask(info.Handle)
	s.logger.Info("task killed", "task", info.Handle, "tag", info.Tag)
	s.respondTask(w, r, info.Handle)
}

func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	reqID := RequestIDFromContext(r.Context())
	info, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	if info.State.IsTerminal() {
		to := coro.TaskStatePaused
		if !paused {
			to = coro.TaskStateRunning
		}
		err := &model.TransitionError{Task: info.Handle, From: info.State, To: to}
		respondError(w, reqID, err.APIError())
		return
	}
	if paused {
		s.sched.PauseTask(info.Handle)
	} else {
		s.sched.ResumeTask(info.Handle)
	}
	s.logger.Info("task pause set", "task", info.Handle, "paused", paused)
	s.respondTask(w, r, info.Handle)
}

// respondTask writes h's current state, or a 404 if it was purged meanwhile.
func (s *Server) respondTask(w http.ResponseWriter, r *http.Request, h coro.Handle) {
	reqID := RequestIDFromContext(r.Context())
	info, ok := s.sched.Task(h)
	if !ok {
		respondError(w, reqID, model.NewNotFoundError("task", h.String()))
		return
	}
	respondOK(w, reqID, info)
}

func (s *Server) handleKillTag(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tag := chi.URLParam(r, "tag")

	n := 0
	for _, info := range s.sched.Snapshot() {
		if info.Tag == tag && !info.Killed {
			n++
		}
	}
	s.sched.KillTasksByTag(tag)
	s.logger.Info("tag killed", "tag", tag, "tasks", n)
	respondOK(w, reqID, map[string]any{"tag": tag, "killed": n})
}
