package pool

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/common"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	cap := 1 * time.Second
	require.Equal(t, 100*time.Millisecond, backoffDelay(0, base, cap))
	require.Equal(t, 200*time.Millisecond, backoffDelay(1, base, cap))
	require.Equal(t, cap, backoffDelay(10, base, cap))
}

func TestGetToolUnknownReturnsFalse(t *testing.T) {
	p := New(nil, nil, zerolog.Nop(), Options{})
	_, ok := p.GetTool("fs.read_file")
	require.False(t, ok)
}

func TestCallUnknownToolReturnsGatewayError(t *testing.T) {
	p := New(nil, nil, zerolog.Nop(), Options{})
	_, err := p.Call(context.Background(), "fs.read_file", nil, 0, 0)
	require.Error(t, err)
	var gerr *common.GatewayError
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, common.ErrToolNotFound, gerr.Code)
}

func TestCallDeadServerReturnsServerUnavailable(t *testing.T) {
	p := New(nil, nil, zerolog.Nop(), Options{})
	h := newHandle("fs", common.SpawnSpec{Transport: "stdio", Command: "true"}, 5, time.Millisecond, time.Millisecond, zerolog.Nop(), nil)
	h.state = common.StateDead

	p.mu.Lock()
	p.handles["fs"] = h
	p.registry["fs.read_file"] = "fs"
	p.mu.Unlock()

	_, err := p.Call(context.Background(), "fs.read_file", nil, 0, 0)
	require.Error(t, err)
	var gerr *common.GatewayError
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, common.ErrServerUnavailable, gerr.Code)
}

func TestStatesReflectsHandleStates(t *testing.T) {
	p := New(nil, nil, zerolog.Nop(), Options{})
	h := newHandle("fs", common.SpawnSpec{Transport: "stdio", Command: "true"}, 5, time.Millisecond, time.Millisecond, zerolog.Nop(), nil)
	h.state = common.StateReady

	p.mu.Lock()
	p.handles["fs"] = h
	p.mu.Unlock()

	states := p.States()
	require.Equal(t, common.StateReady, states["fs"])
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	require.Equal(t, 5, o.FailureBudget)
	require.Equal(t, 2, o.MaxRetries)
	require.Greater(t, o.CallTimeout, time.Duration(0))
}

func TestRecordFailureMarksDeadAfterBudget(t *testing.T) {
	var transitions []string
	h := newHandle("fs", common.SpawnSpec{}, 2, time.Millisecond, time.Millisecond, zerolog.Nop(), func(server, from, to string) {
		transitions = append(transitions, to)
	})
	h.recordFailure(context.DeadlineExceeded)
	h.recordFailure(context.DeadlineExceeded)
	h.recordFailure(context.DeadlineExceeded)
	require.Equal(t, common.StateDead, h.getState())
	require.Contains(t, transitions, string(common.StateFailing))
	require.Contains(t, transitions, string(common.StateDead))
}
