package storage

import (
	"context"
	"errors"
	"testing"
)

// fakeUoW records lifecycle calls; repository accessors are unused here
type fakeUoW struct {
	UnitOfWork
	committed bool
	closed    int
	commitErr error
}

func (f *fakeUoW) Commit() error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeUoW) Rollback() error { return nil }

func (f *fakeUoW) Close() error {
	f.closed++
	return nil
}

type fakeManager struct {
	uow      *fakeUoW
	startErr error
}

func (m *fakeManager) Start(ctx context.Context) (UnitOfWork, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.uow, nil
}

func (m *fakeManager) Close() error { return nil }

func TestWithUnitOfWorkCommitsOnSuccess(t *testing.T) {
	uow := &fakeUoW{}
	err := WithUnitOfWork(context.Background(), &fakeManager{uow: uow}, func(UnitOfWork) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !uow.committed {
		t.Error("expected commit")
	}
	if uow.closed != 1 {
		t.Errorf("Close called %d times, want 1", uow.closed)
	}
}

func TestWithUnitOfWorkSkipsCommitOnError(t *testing.T) {
	uow := &fakeUoW{}
	boom := errors.New("boom")
	err := WithUnitOfWork(context.Background(), &fakeManager{uow: uow}, func(UnitOfWork) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if uow.committed {
		t.Error("must not commit when fn fails")
	}
	if uow.closed != 1 {
		t.Errorf("Close called %d times, want 1", uow.closed)
	}
}

func TestWithUnitOfWorkReportsCommitFailure(t *testing.T) {
	uow := &fakeUoW{commitErr: errors.New("disk full")}
	err := WithUnitOfWork(context.Background(), &fakeManager{uow: uow}, func(UnitOfWork) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected commit failure to surface")
	}
	if uow.closed != 1 {
		t.Errorf("Close called %d times, want 1", uow.closed)
	}
}

func TestWithUnitOfWorkStartFailure(t *testing.T) {
	called := false
	err := WithUnitOfWork(context.Background(), &fakeManager{startErr: errors.New("locked")}, func(UnitOfWork) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected start failure to surface")
	}
	if called {
		t.Error("fn must not run when the scope cannot start")
	}
}

func TestReadOnlyNeverCommits(t *testing.T) {
	uow := &fakeUoW{}
	err := ReadOnly(context.Background(), &fakeManager{uow: uow}, func(UnitOfWork) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uow.committed {
		t.Error("ReadOnly must not commit")
	}
	if uow.closed != 1 {
		t.Errorf("Close called %d times, want 1", uow.closed)
	}
}
