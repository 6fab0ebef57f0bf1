package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mbecker/deep-research/pkg/research"
)

type stubSearch struct{}

func (stubSearch) Search(_ context.Context, query string) ([]research.Document, error) {
	return []research.Document{
		{
			Title:   "Result for " + query,
			URL:     "https://example.org/" + strings.ReplaceAll(query, " ", "-"),
			Snippet: "snippet",
		},
	}, nil
}

type stubModel struct {
	gate chan struct{} // when set, Generate blocks until closed
}

func (m *stubModel) Generate(_ context.Context, system, _ string) (string, error) {
	if m.gate != nil {
		<-m.gate
	}
	if strings.Contains(system, "research writer") {
		return "synthesized report", nil
	}
	return "query one\nquery two\nquery three", nil
}

func (m *stubModel) Grade(_ context.Context, _ string, _ research.Document) (string, error) {
	return `{"score": 0.9, "reasoning": "relevant"}`, nil
}

func waitForStatus(t *testing.T, job *Job, want research.Status) research.ResearchState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := job.State(); s.Status == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached status %q, last state %q", want, job.State().Status)
	return research.ResearchState{}
}

func TestJobLifecycle(t *testing.T) {
	svc := NewService(stubSearch{}, &stubModel{}, nil)

	job, err := svc.CreateJob("test research topic", research.Config{MaxIterations: 2})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if got, ok := svc.GetJob(job.ID); !ok || got != job {
		t.Fatal("GetJob() did not return the created job")
	}

	final := waitForStatus(t, job, research.StatusComplete)

	if final.Synthesis != "synthesized report" {
		t.Errorf("Synthesis = %q", final.Synthesis)
	}
	if len(job.Logs()) == 0 {
		t.Error("no log entries captured for the job")
	}

	view := job.view()
	if view.Status != research.StatusComplete {
		t.Errorf("view status = %q, want %q", view.Status, research.StatusComplete)
	}
}

func TestCreateJobRejectsInvalidTopic(t *testing.T) {
	svc := NewService(stubSearch{}, &stubModel{}, nil)

	_, err := svc.CreateJob("", research.Config{})
	var verr *research.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("CreateJob() error = %v, want *research.ValidationError", err)
	}
	if len(svc.ListJobs()) != 0 {
		t.Error("invalid job was registered")
	}
}

func TestSubscribeReceivesEventsAndEndMarker(t *testing.T) {
	gate := make(chan struct{})
	svc := NewService(stubSearch{}, &stubModel{gate: gate}, nil)

	job, err := svc.CreateJob("streaming topic", research.Config{})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	events, cancel := job.Subscribe()
	defer cancel()
	close(gate) // let the worker proceed

	var nodes []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, open := <-events:
			if !open {
				if nodes[len(nodes)-1] != research.NodeEnd {
					t.Errorf("last event = %q, want %q", nodes[len(nodes)-1], research.NodeEnd)
				}
				if nodes[0] != "snapshot" {
					t.Errorf("first event = %q, want the snapshot replay", nodes[0])
				}
				return
			}
			nodes = append(nodes, ev.Node)
		case <-timeout:
			t.Fatalf("stream never closed, events so far: %v", nodes)
		}
	}
}

func TestSubscribeAfterCompletionReplaysEnd(t *testing.T) {
	svc := NewService(stubSearch{}, &stubModel{}, nil)

	job, err := svc.CreateJob("finished topic", research.Config{})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	waitForStatus(t, job, research.StatusComplete)

	// publish closes subscriber channels on the end event; a late
	// subscriber may still observe the worker finishing, so wait for
	// the done flag via a fresh subscription.
	deadline := time.Now().Add(5 * time.Second)
	for {
		events, cancel := job.Subscribe()
		ev, open := <-events
		cancel()
		if open && ev.Node == research.NodeEnd {
			if ev.State.Status != research.StatusComplete {
				t.Errorf("replayed state status = %q, want %q", ev.State.Status, research.StatusComplete)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("late subscription never replayed the end event")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListJobsContainsAllJobs(t *testing.T) {
	svc := NewService(stubSearch{}, &stubModel{}, nil)

	want := make(map[string]bool)
	for i := 0; i < 3; i++ {
		topic := fmt.Sprintf("list topic %d", i)
		if _, err := svc.CreateJob(topic, research.Config{}); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
		want[topic] = true
	}

	views := svc.ListJobs()
	if len(views) != 3 {
		t.Fatalf("len(ListJobs()) = %d, want 3", len(views))
	}
	for _, v := range views {
		if !want[v.Topic] {
			t.Errorf("unexpected job topic %q", v.Topic)
		}
	}
}
