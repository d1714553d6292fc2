package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/ports"
)

// MockStore structure
type MockStore struct{}

func (m *MockStore) Save(ctx context.Context, sessionID string, snapshot *domain.Snapshot) error {
	return nil
}
func (m *MockStore) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return nil, domain.ErrSessionNotFound
}
func (m *MockStore) Delete(ctx context.Context, sessionID string) error { return nil }
func (m *MockStore) List(ctx context.Context) ([]string, error)         { return nil, nil }

type nopGenerator struct{}

func (nopGenerator) Generate(context.Context, ports.GenerateRequest) (ports.Generation, error) {
	return ports.Generation{}, nil
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(&MockStore{}, keeper.New(nopGenerator{}))
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_ = mgr.Save(ctx, domain.NewSnapshot(sid, "x"))
		_, _ = mgr.Get(ctx, sid)
		_ = mgr.Delete(ctx, sid)
	}

	lockCount := len(mgr.locks)
	t.Logf("Sessions Created: %d, Locks Leaked: %d", count, lockCount)
	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}

func TestManager_RejectBusyReleasesEntry(t *testing.T) {
	mgr := NewManager(&MockStore{}, keeper.New(nopGenerator{}), WithRejectBusy())
	ctx := context.Background()

	err := mgr.WithLock(ctx, "s", func(ctx context.Context) error {
		return mgr.WithLock(ctx, "s", func(context.Context) error { return nil })
	})
	if err == nil {
		t.Fatal("expected busy error for nested lock")
	}
	if len(mgr.locks) != 0 {
		t.Errorf("expected no lock entries, got %d", len(mgr.locks))
	}
}
