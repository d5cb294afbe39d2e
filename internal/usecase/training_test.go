package usecase

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitDone(t *testing.T, job *TrainingJob) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("training job did not finish")
	}
}

func TestStartTrainingSucceeds(t *testing.T) {
	admin := &stubAdministrative{train: &stubTrain{}}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop())

	job := uc.StartTraining(context.Background(), validConfig(), "g")
	waitDone(t, job)
	if job.Err() != nil || job.State() != JobSucceeded {
		t.Fatalf("expected success, got %v %s", job.Err(), job.State())
	}
	snap := job.Snapshot()
	if snap.FinishedAt == nil || snap.GroupID != "g" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStartTrainingCancel(t *testing.T) {
	admin := &stubAdministrative{train: &stubTrain{block: true}}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop())

	tracker := NewTrainingTracker()
	job := uc.StartTraining(context.Background(), validConfig(), "g")
	tracker.Track(job)
	if job.State() != JobRunning {
		t.Fatalf("expected running job, got %s", job.State())
	}

	if !tracker.Cancel(job.ID) {
		t.Fatal("expected tracked job to be cancelled")
	}
	waitDone(t, job)
	if job.State() != JobAbandoned {
		t.Fatalf("expected abandoned job, got %s", job.State())
	}
	if tracker.Cancel("missing") {
		t.Fatal("unknown job must not cancel")
	}
}

func TestTrainingTrackerListAndPrune(t *testing.T) {
	admin := &stubAdministrative{train: &stubTrain{}}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop())
	tracker := NewTrainingTracker()

	first := uc.StartTraining(context.Background(), validConfig(), "g1")
	tracker.Track(first)
	waitDone(t, first)
	second := uc.StartTraining(context.Background(), validConfig(), "g2")
	tracker.Track(second)
	waitDone(t, second)

	if got, ok := tracker.Get(first.ID); !ok || got != first {
		t.Fatal("expected job lookup by id")
	}
	if list := tracker.List(); len(list) != 2 {
		t.Fatalf("expected two jobs, got %d", len(list))
	}
	if removed := tracker.Prune(time.Hour); removed != 0 {
		t.Fatalf("expected nothing pruned, got %d", removed)
	}
	if removed := tracker.Prune(-time.Second); removed != 2 {
		t.Fatalf("expected both pruned, got %d", removed)
	}
}
