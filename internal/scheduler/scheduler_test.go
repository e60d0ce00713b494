package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{spec: "0 */6 * * *"},
		{spec: "30 7 * * MON-FRI"},
		{spec: "@daily"},
		{spec: "@every 1h"},
		{spec: "", wantErr: true},
		{spec: "every day", wantErr: true},
		{spec: "0 0 * * * *", wantErr: true},
		{spec: "61 * * * *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := Parse(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid schedule")
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestParse_NextInLocation(t *testing.T) {
	s, err := Parse("30 7 * * *")
	require.NoError(t, err)

	from := time.Date(2021, 1, 4, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2021, 1, 5, 7, 30, 0, 0, time.UTC), s.Next(from))
}

func TestScheduler_RunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	ran := make(chan struct{}, 1)

	s := New("@every 1s", time.UTC, func(ctx context.Context) error {
		runs.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return errors.New("failures are logged, not fatal")
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New("not a schedule", nil, func(context.Context) error { return nil }, nil)
	err := s.Run(context.Background())
	assert.Error(t, err)
}
