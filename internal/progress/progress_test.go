package progress

import (
	"sync"
	"testing"
)

func checkInvariant(t *testing.T, s Snapshot) {
	t.Helper()
	if s.CompletedTasks > s.TotalTasks {
		t.Errorf("completed %d exceeds total %d", s.CompletedTasks, s.TotalTasks)
	}
	if s.Active && s.TotalTasks == 0 && s.CompletedTasks != 0 {
		t.Errorf("active with zero total and %d completed", s.CompletedTasks)
	}
	if s.Progress < 0 || s.Progress > 100 {
		t.Errorf("progress %d out of range", s.Progress)
	}
}

func TestRunLifecycle(t *testing.T) {
	r := New()

	if s := r.Snapshot(); s.Active || s.TotalTasks != 0 || s.RunID != "" {
		t.Fatalf("Expected idle reporter, got %+v", s)
	}

	id := r.BeginRun("scan", 3)
	if id == "" {
		t.Fatal("Expected run ID")
	}

	if !r.Advance("a.jpg") || !r.Advance("b.jpg") {
		t.Fatal("Expected Advance to count")
	}
	if r.EndRun() {
		t.Error("EndRun should not end an incomplete run")
	}

	s := r.Snapshot()
	if !s.Active || s.CompletedTasks != 2 || s.TotalTasks != 3 || s.Progress != 66 || s.CurrentTask != "b.jpg" {
		t.Errorf("Unexpected snapshot %+v", s)
	}

	r.Advance("c.jpg")
	if r.Advance("extra.jpg") {
		t.Error("Advance past total should be rejected")
	}
	if !r.EndRun() {
		t.Error("Expected EndRun to end a complete run")
	}

	s = r.Snapshot()
	if s.Active || s.Progress != 100 || s.CompletedTasks != 3 || s.TotalTasks != 3 || s.RunID != id {
		t.Errorf("Unexpected final snapshot %+v", s)
	}
	if s.StartedAt == nil {
		t.Error("Expected started_at")
	}
}

func TestBeginRunExtendsActiveRun(t *testing.T) {
	r := New()
	first := r.BeginRun("folder-1", 2)
	r.Advance("x")
	second := r.BeginRun("folder-2", 3)

	if first != second {
		t.Errorf("Expected shared run ID, got %s and %s", first, second)
	}
	s := r.Snapshot()
	if s.TotalTasks != 5 || s.CompletedTasks != 1 || s.Operation != "folder-1" {
		t.Errorf("Unexpected snapshot %+v", s)
	}

	r.EndRun()
	r.Abort("stopping")
	third := r.BeginRun("again", 1)
	if third == first {
		t.Error("Expected a new run ID after the previous run ended")
	}
	if s := r.Snapshot(); s.Error != "" || s.CompletedTasks != 0 {
		t.Errorf("Expected fresh run state, got %+v", s)
	}
}

func TestRetract(t *testing.T) {
	r := New()
	r.BeginRun("scan", 10)
	r.Advance("a")
	r.Advance("b")

	r.Retract(8)
	s := r.Snapshot()
	if s.TotalTasks != 2 {
		t.Errorf("Expected total 2 after retract, got %d", s.TotalTasks)
	}
	if !r.EndRun() {
		t.Error("Expected run to end once retracted work is accounted for")
	}

	r.BeginRun("scan", 3)
	r.Advance("a")
	r.Retract(10)
	if s := r.Snapshot(); s.TotalTasks != 1 || s.CompletedTasks != 1 {
		t.Errorf("Retract must not drop total below completed, got %+v", s)
	}
}

func TestAbort(t *testing.T) {
	r := New()
	r.BeginRun("scan", 5)
	r.Abort("shutdown")

	s := r.Snapshot()
	if s.Active || s.Error != "shutdown" {
		t.Errorf("Unexpected snapshot after abort %+v", s)
	}
	if r.Advance("late") {
		t.Error("Advance after abort should be ignored")
	}
}

func TestConcurrentProducers(t *testing.T) {
	r := New()
	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.BeginRun("scan", perProducer)
			for i := 0; i < perProducer; i++ {
				r.Advance("task")
				checkInvariant(t, r.Snapshot())
				r.EndRun()
			}
		}()
	}
	wg.Wait()

	s := r.Snapshot()
	checkInvariant(t, s)
	if s.Active {
		t.Errorf("Expected run to be finished, got %+v", s)
	}
}
