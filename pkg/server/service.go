package server

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbecker/deep-research/pkg/research"
)

// Job tracks one research run. Jobs live in memory only; they are gone
// after a restart.
type Job struct {
	ID        uuid.UUID
	Topic     string
	Config    research.Config
	CreatedAt time.Time

	mu        sync.RWMutex
	updatedAt time.Time
	state     research.ResearchState
	logs      []LogEntry
	subs      map[chan research.StreamEvent]struct{}
	done      bool
}

// JobView is the JSON shape of a job for the API.
type JobView struct {
	ID        uuid.UUID       `json:"id"`
	Topic     string          `json:"topic"`
	Status    research.Status `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (j *Job) view() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:        j.ID,
		Topic:     j.Topic,
		Status:    j.state.Status,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.updatedAt,
	}
}

// State returns a snapshot of the job's current research state.
func (j *Job) State() research.ResearchState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Logs returns a copy of the captured log entries.
func (j *Job) Logs() []LogEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]LogEntry, len(j.logs))
	copy(out, j.logs)
	return out
}

func (j *Job) appendLog(entry LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, entry)
}

func (j *Job) publish(ev research.StreamEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = ev.State
	j.updatedAt = time.Now()
	for ch := range j.subs {
		// A stalled subscriber must not block the worker; it misses the
		// intermediate update and catches up on the next one.
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Node == research.NodeEnd {
		j.done = true
		for ch := range j.subs {
			close(ch)
		}
		j.subs = nil
	}
}

// Subscribe registers a listener for the job's stream events. The first
// event replays the current state so late subscribers start consistent.
// The channel closes when the job reaches its terminal event. The
// returned cancel func must be called when the consumer stops early.
func (j *Job) Subscribe() (<-chan research.StreamEvent, func()) {
	ch := make(chan research.StreamEvent, 16)

	j.mu.Lock()
	if j.done {
		ch <- research.StreamEvent{Node: research.NodeEnd, State: j.state}
		close(ch)
		j.mu.Unlock()
		return ch, func() {}
	}
	if j.subs == nil {
		j.subs = make(map[chan research.StreamEvent]struct{})
	}
	j.subs[ch] = struct{}{}
	ch <- research.StreamEvent{Node: "snapshot", State: j.state}
	j.mu.Unlock()

	cancel := func() {
		j.mu.Lock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
		j.mu.Unlock()
	}
	return ch, cancel
}

// SourceIndexer ingests the relevant documents of a completed run into
// the document-QA store. Implemented by Indexer; nil disables indexing.
type SourceIndexer interface {
	IndexSources(ctx context.Context, topic string, docs []research.GradedDocument, logger *slog.Logger)
}

// Service owns the in-memory job registry and runs one background
// worker per job.
type Service struct {
	search  research.SearchBackend
	model   research.RelevanceModel
	indexer SourceIndexer

	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

func NewService(search research.SearchBackend, model research.RelevanceModel, indexer SourceIndexer) *Service {
	return &Service{
		search:  search,
		model:   model,
		indexer: indexer,
		jobs:    make(map[uuid.UUID]*Job),
	}
}

// CreateJob validates the topic, registers a job and starts its worker.
func (s *Service) CreateJob(topic string, cfg research.Config) (*Job, error) {
	if err := research.ValidateTopic(topic); err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.New(),
		Topic:     topic,
		Config:    cfg,
		CreatedAt: time.Now(),
		updatedAt: time.Now(),
		state:     research.NewState(topic, cfg),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go s.runWorker(job)

	return job, nil
}

func (s *Service) GetJob(id uuid.UUID) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// ListJobs returns job summaries, newest first.
func (s *Service) ListJobs() []JobView {
	s.mu.RLock()
	views := make([]JobView, 0, len(s.jobs))
	for _, job := range s.jobs {
		views = append(views, job.view())
	}
	s.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}

func (s *Service) runWorker(job *Job) {
	ctx := context.Background()

	logger := slog.New(NewJobLogHandler(job.appendLog))
	engine := research.NewEngine(s.search, s.model).WithLogger(logger)

	for ev, err := range engine.Stream(ctx, job.Topic, job.Config) {
		if err != nil {
			logger.Error("Research run failed", "job_id", job.ID, "error", err)
		}
		job.publish(ev)
	}

	final := job.State()
	if final.Status == research.StatusComplete && s.indexer != nil && len(final.RelevantDocuments) > 0 {
		s.indexer.IndexSources(ctx, final.Topic, final.RelevantDocuments, logger)
	}
}
