package taskmanager

import (
	"context"
	"errors"
	"testing"
)

func TestSpawnAwaitResult(t *testing.T) {
	m := New(0)
	task := m.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})

	v, err := m.Await(context.Background(), task.ID)
	if err != nil || v != 42 {
		t.Fatalf("Await = %v, %v", v, err)
	}
	done, err := m.IsDone(task.ID)
	if err != nil || !done {
		t.Fatalf("IsDone = %v, %v", done, err)
	}
}

func TestSpawnPropagatesError(t *testing.T) {
	m := New(0)
	wantErr := errors.New("boom")
	task := m.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		return nil, wantErr
	})

	_, err := m.Await(context.Background(), task.ID)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Await error = %v, want %v", err, wantErr)
	}
	gotErr, err := m.Exception(task.ID)
	if err != nil || gotErr != wantErr {
		t.Fatalf("Exception = %v, %v", gotErr, err)
	}
}

func TestCancelStopsTask(t *testing.T) {
	m := New(0)
	started := make(chan struct{})
	task := m.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	if err := m.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err := m.Await(context.Background(), task.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Await after Cancel = %v, want context.Canceled", err)
	}
}

func TestCleanupCancelsAndClearsTasks(t *testing.T) {
	m := New(0)
	started := make(chan struct{})
	task := m.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	m.Cleanup()

	if _, err := m.Await(context.Background(), task.ID); err == nil {
		t.Fatal("Await should fail for a task forgotten by Cleanup")
	}
}

func TestAwaitUnknownTask(t *testing.T) {
	m := New(0)
	if _, err := m.Await(context.Background(), "nope"); err == nil {
		t.Fatal("Await on an unknown task id should fail")
	}
}
