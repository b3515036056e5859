package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/claimguard/internal/domain"
)

type fakeLister struct {
	tenants []string
	err     error
}

func (f fakeLister) ListPendingTenants(context.Context) ([]string, error) {
	return f.tenants, f.err
}

type fakeEnqueuer struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, tenantID string) (*domain.ValidationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tenantID)
	if tenantID == f.failOn {
		return nil, errors.New("bus unavailable")
	}
	return &domain.ValidationJob{ID: "job-" + tenantID, TenantID: tenantID, Status: domain.JobQueued}, nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweep(t *testing.T) {
	enq := &fakeEnqueuer{}
	s, err := New("0 */5 * * * *", fakeLister{tenants: []string{"tenant-a", "tenant-b"}}, enq, nil)
	require.NoError(t, err)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, enq.calls)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	enq := &fakeEnqueuer{failOn: "tenant-a"}
	s, err := New("0 */5 * * * *", fakeLister{tenants: []string{"tenant-a", "tenant-b"}}, enq, nil)
	require.NoError(t, err)

	n, err := s.Sweep(context.Background())
	assert.Equal(t, 1, n)
	assert.ErrorContains(t, err, "tenant-a")
	assert.Len(t, enq.calls, 2)
}

func TestSweepListError(t *testing.T) {
	s, err := New("0 */5 * * * *", fakeLister{err: errors.New("db down")}, &fakeEnqueuer{}, nil)
	require.NoError(t, err)

	_, err = s.Sweep(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("every five minutes", fakeLister{}, &fakeEnqueuer{}, nil)
	assert.Error(t, err)

	_, err = New("", fakeLister{}, &fakeEnqueuer{}, nil)
	assert.Error(t, err)
}

func TestScheduleFires(t *testing.T) {
	enq := &fakeEnqueuer{}
	s, err := New("* * * * * *", fakeLister{tenants: []string{"tenant-a"}}, enq, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	assert.Eventually(t, func() bool { return enq.count() > 0 }, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	after := enq.count()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, after, enq.count(), "no sweeps after Stop")
}
