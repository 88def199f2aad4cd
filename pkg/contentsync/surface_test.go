package contentsync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breffi/content-sync/pkg/contentsync"
)

func TestSurfaceTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []contentsync.NavState
		wantErr bool
	}{
		{
			name: "successful navigation",
			path: []contentsync.NavState{
				contentsync.NavProvisional,
				contentsync.NavCommitted,
				contentsync.NavFinished,
			},
		},
		{
			name: "failure during commit",
			path: []contentsync.NavState{
				contentsync.NavProvisional,
				contentsync.NavCommitted,
				contentsync.NavFailed,
				contentsync.NavIdle,
			},
		},
		{
			name: "failed surface retries directly",
			path: []contentsync.NavState{
				contentsync.NavProvisional,
				contentsync.NavFailed,
				contentsync.NavProvisional,
			},
		},
		{
			name:    "idle cannot finish",
			path:    []contentsync.NavState{contentsync.NavFinished},
			wantErr: true,
		},
		{
			name: "provisional cannot finish without commit",
			path: []contentsync.NavState{
				contentsync.NavProvisional,
				contentsync.NavFinished,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := contentsync.NewSurfaceTracker()

			var err error
			for _, state := range tt.path {
				if err = tracker.Transition(state); err != nil {
					break
				}
			}

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.path[len(tt.path)-1], tracker.State())
			}
		})
	}
}

func TestSurfaceReady(t *testing.T) {
	tracker := contentsync.NewSurfaceTracker()
	assert.False(t, tracker.Ready())

	require.NoError(t, tracker.Transition(contentsync.NavProvisional))
	require.NoError(t, tracker.Transition(contentsync.NavCommitted))
	assert.False(t, tracker.Ready())

	require.NoError(t, tracker.Transition(contentsync.NavFinished))
	assert.True(t, tracker.Ready())

	// A new navigation takes readiness away again.
	require.NoError(t, tracker.Transition(contentsync.NavProvisional))
	assert.False(t, tracker.Ready())
}

func TestSurfaceReset(t *testing.T) {
	tracker := contentsync.NewSurfaceTracker()
	require.NoError(t, tracker.Transition(contentsync.NavProvisional))

	tracker.Reset()
	assert.Equal(t, contentsync.NavIdle, tracker.State())
}
