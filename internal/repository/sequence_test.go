package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySequenceIsPerKeyAndConcurrentSafe(t *testing.T) {
	seq := NewMemorySequence()
	ctx := context.Background()

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx, "BR/OROMIA/03/2016")
			assert.NoError(t, err)
			_, dup := seen.LoadOrStore(n, true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()

	n, err := seq.Next(ctx, "DR/OROMIA/03/2016")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	seq.Seed("BR/OROMIA/03/2016", 99)
	n, err = seq.Next(ctx, "BR/OROMIA/03/2016")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestRedisSequenceRequiresClient(t *testing.T) {
	_, err := NewRedisSequence(nil).Next(context.Background(), "k")
	require.Error(t, err)
}
