package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatmallu/client/ai"
	"chatmallu/client/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (f *fakeProber) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProber) Health(ctx context.Context) (*ai.HealthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ai.HealthStatus{Status: "healthy", Model: "llama3"}, nil
}

func TestInferenceCheck_PublishesOnChange(t *testing.T) {
	prober := &fakeProber{}
	checker := NewChecker(logger.Nop(), time.Minute, time.Second)
	checker.RegisterInferenceCheck(prober)

	var changes []Connection
	checker.OnChange(func(c Component) {
		if c.Name == ComponentInference {
			changes = append(changes, ConnectionOf(c))
		}
	})

	checker.RunChecks(context.Background())
	checker.RunChecks(context.Background())
	require.Len(t, changes, 1, "an unchanged status is not re-published")
	assert.Equal(t, StatusUp, changes[0].Status)
	assert.Equal(t, "llama3", changes[0].Model)

	prober.set(errors.New("connection refused"))
	checker.RunChecks(context.Background())
	require.Len(t, changes, 2)
	assert.Equal(t, StatusDown, changes[1].Status)
	assert.Equal(t, "connection refused", changes[1].Error)
	assert.Empty(t, changes[1].Model)

	assert.Equal(t, StatusDown, checker.Connection().Status)
	assert.True(t, checker.IsSystemHealthy(), "inference outage does not make the client unhealthy")
}

func TestCheck_BoundedByTimeout(t *testing.T) {
	checker := NewChecker(logger.Nop(), time.Minute, 20*time.Millisecond)
	checker.RegisterCheck("slow", func(ctx context.Context) (Status, string, error) {
		<-ctx.Done()
		return StatusDown, "timed out", ctx.Err()
	})

	start := time.Now()
	checker.RunChecks(context.Background())
	assert.Less(t, time.Since(start), time.Second)

	comp, ok := checker.Component("slow")
	require.True(t, ok)
	assert.Equal(t, StatusDown, comp.Status)
	assert.Contains(t, comp.Error, "deadline exceeded")
}

func TestStorageCheck_IsCritical(t *testing.T) {
	checker := NewChecker(logger.Nop(), time.Minute, time.Second)
	checker.RegisterStorageCheck(func(context.Context) error { return errors.New("disk gone") })
	checker.RunChecks(context.Background())
	assert.False(t, checker.IsSystemHealthy())
}

func TestGRPCServer_MirrorsInference(t *testing.T) {
	prober := &fakeProber{}
	checker := NewChecker(logger.Nop(), time.Minute, time.Second)
	checker.RegisterInferenceCheck(prober)
	srv := NewGRPCServer(checker)

	ctx := context.Background()
	resp, err := srv.Check(ctx, &healthpb.HealthCheckRequest{Service: GRPCService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	checker.RunChecks(ctx)
	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{Service: GRPCService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	prober.set(errors.New("down"))
	checker.RunChecks(ctx)
	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{Service: GRPCService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestRun_StopsWithContext(t *testing.T) {
	checker := NewChecker(logger.Nop(), time.Millisecond, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, checker.Run(ctx))
	_, ok := checker.Component(ComponentSelf)
	assert.True(t, ok)
}
