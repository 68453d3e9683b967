package media

import (
	"testing"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOnEmptyPool(t *testing.T) {
	p := &WorkerPool{}
	_, err := p.Next()
	assert.ErrorIs(t, err, ErrPoolEmpty)
}

func TestNextRoundRobin(t *testing.T) {
	w1, w2 := new(mediasoup.Worker), new(mediasoup.Worker)
	p := &WorkerPool{workers: []*mediasoup.Worker{w1, w2}}

	got1, err := p.Next()
	require.NoError(t, err)
	got2, err := p.Next()
	require.NoError(t, err)
	got3, err := p.Next()
	require.NoError(t, err)

	assert.Same(t, w1, got1)
	assert.Same(t, w2, got2)
	assert.Same(t, w1, got3)
	assert.Equal(t, 2, p.Size())
}
