package provisioning

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/ec2keeper/internal/store"
)

type recordingObserver struct {
	events []Event
}

func (r *recordingObserver) Event(e Event)                         { r.events = append(r.events, e) }
func (r *recordingObserver) Progress(string, int, int)             {}
func (r *recordingObserver) WithFields(map[string]string) Observer { return r }

func TestStateTransitions(t *testing.T) {
	t.Parallel()
	assert.True(t, StateRequested.CanTransition(StateReused))
	assert.True(t, StateRequested.CanTransition(StateLaunching))
	assert.True(t, StatePending.CanTransition(StateFailed))
	assert.False(t, StateRequested.CanTransition(StateReady))
	assert.False(t, StateRunning.CanTransition(StateFailed))
	assert.False(t, StateReady.CanTransition(StateFailed))

	assert.True(t, StateReady.IsTerminal())
	assert.True(t, StateReused.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateSSHWaiting.IsTerminal())
}

func TestAttempt_HappyPath(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	a := newAttempt(obs, nil)

	for _, s := range []State{StateLaunching, StatePending, StateRunning, StateSSHWaiting, StateReady} {
		a.enter(s, "i-1")
	}

	assert.Equal(t, []State{
		StateRequested, StateLaunching, StatePending, StateRunning, StateSSHWaiting, StateReady,
	}, a.history)
	require.Len(t, obs.events, 5)
	assert.Equal(t, EventStateEntered, obs.events[0].Type)
}

func TestAttempt_IllegalTransitionPanics(t *testing.T) {
	t.Parallel()
	a := newAttempt(&recordingObserver{}, nil)
	assert.Panics(t, func() { a.enter(StateReady, "") })
}

func TestAttempt_Fail(t *testing.T) {
	t.Parallel()
	obs := &recordingObserver{}
	a := newAttempt(obs, nil)
	a.enter(StateLaunching, "")

	boom := errors.New("boom")
	assert.Same(t, boom, a.fail(boom, "i-1"))
	assert.Equal(t, StateFailed, a.state)
	assert.Equal(t, EventStateFailed, obs.events[len(obs.events)-1].Type)
}

func TestTiers(t *testing.T) {
	t.Parallel()
	_, err := SizeForTier(store.TierFree)
	assert.ErrorIs(t, err, ErrTierNotEligible)
	_, err = SizeForTier("platinum")
	assert.ErrorIs(t, err, ErrTierNotEligible)

	size, err := SizeForTier(store.TierProfessional)
	require.NoError(t, err)
	assert.Equal(t, "t3.medium", size)

	assert.Equal(t, 0, LimitForTier(store.TierFree))
	assert.Equal(t, 1, LimitForTier(store.TierBasic))
	assert.Equal(t, 2, LimitForTier(store.TierProfessional))
	assert.Equal(t, 5, LimitForTier(store.TierEnterprise))
	assert.Equal(t, 0, LimitForTier("platinum"))
}

func TestSanitizeImageID(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"ami-123":        "ami-123",
		`["ami-123"]`:    "ami-123",
		`[ami-1, ami-2]`: "ami-1",
		"  'ami-123'  ":  "ami-123",
		"[]":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeImageID(in), "input %q", in)
	}
}

func TestBestEffort(t *testing.T) {
	t.Parallel()
	assert.True(t, bestEffort(logr.Discard(), "ok", func() error { return nil }))
	assert.False(t, bestEffort(logr.Discard(), "err", func() error { return errors.New("x") }))
	assert.False(t, bestEffort(logr.Discard(), "panic", func() error { panic("kaboom") }))
}

func TestErrorReason(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "none", errorReason(nil))
	assert.Equal(t, "ssh_timeout", errorReason(ErrSSHTimeout))
	assert.Equal(t, "deployment_not_found", errorReason(ErrDeploymentNotFound))
	assert.ErrorIs(t, ErrDeploymentNotFound, store.ErrNotFound)
	assert.Equal(t, "error", errorReason(errors.New("other")))
}
