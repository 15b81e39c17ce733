package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{name: "run", id: NewRunID().String(), prefix: RunPrefix},
		{name: "channel", id: NewChannelID().String(), prefix: ChannelPrefix},
		{name: "request", id: NewRequestID().String(), prefix: RequestPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.id, tt.prefix+"_"))
			assert.True(t, IsValid(tt.id))

			prefix, _, err := Parse(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, bad := range []string{"", "run", "run_", "run_not-a-ulid", "01ARZ3NDEKTSV4RRFFQ69G5FAV"} {
		assert.False(t, IsValid(bad), bad)
	}
}

func TestIDsSortByCreation(t *testing.T) {
	gen := NewGenerator()

	prev := gen.GenerateWithPrefix(RunPrefix)
	for i := 0; i < 100; i++ {
		next := gen.GenerateWithPrefix(RunPrefix)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewRunID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("bogus")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	const workers, perWorker = 10, 100

	var (
		mu   sync.Mutex
		seen = make(map[RunID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewRunID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
