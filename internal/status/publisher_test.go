package status

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpuwatch/internal/snapshot"
)

func TestPublisherSeedState(t *testing.T) {
	p := NewPublisher()

	state := p.Current()
	assert.False(t, state.OK)
	assert.Equal(t, "disconnected", state.State)
	assert.NotNil(t, state.ConfigErrors)
	assert.Empty(t, state.ConfigErrors)
	assert.Nil(t, state.Data)
	assert.False(t, state.LastUpdate.IsZero())
}

func TestPublishReplacesState(t *testing.T) {
	p := NewPublisher()

	snap := &snapshot.Snapshot{
		GPUs:      []snapshot.DeviceRecord{{Index: 0, Name: "Tesla T4"}},
		Timestamp: time.Now().UTC(),
	}
	p.Publish(PublishedState{
		OK:     true,
		State:  "connected",
		Server: &ServerInfo{Host: "gpu-box-1", Port: 22, User: "ubuntu"},
		Data:   snap,
	})

	state := p.Current()
	assert.True(t, state.OK)
	assert.Equal(t, "connected", state.State)
	require.NotNil(t, state.Data)
	assert.Equal(t, "Tesla T4", state.Data.GPUs[0].Name)
	// Nil config errors are normalized so JSON renders [] not null.
	assert.NotNil(t, state.ConfigErrors)
	assert.False(t, state.LastUpdate.IsZero())
}

// One writer and many readers must never produce a torn state: each read
// sees a state whose fields are mutually consistent.
func TestPublisherConcurrentReaders(t *testing.T) {
	p := NewPublisher()

	const writes = 1000
	const readers = 8

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			// OK and Error are kept mutually exclusive so readers can
			// detect a half-written state.
			if i%2 == 0 {
				p.Publish(PublishedState{OK: true, State: "connected", Error: ""})
			} else {
				p.Publish(PublishedState{OK: false, State: "retrying", Error: fmt.Sprintf("err %d", i)})
			}
		}
	}()

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				state := p.Current()
				if state.OK {
					assert.Equal(t, "connected", state.State)
					assert.Empty(t, state.Error)
				} else if state.State == "retrying" {
					assert.NotEmpty(t, state.Error)
				}
			}
		}()
	}

	wg.Wait()
}
