package pbuf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prism-engine/prism/pbuf"
	"github.com/prism-engine/prism/prismtest"
	"github.com/stretchr/testify/require"
)

func TestSurface_postTracksFrameNumbers(t *testing.T) {
	t.Parallel()

	producer := &prismtest.RecordingProducer{QueueToken: 9}
	s := pbuf.NewSurface(producer, false)

	require.Zero(t, s.LastFrameNumber())

	f1, err := s.Post(context.Background(), []byte("first"))
	require.NoError(t, err)
	require.Equal(t, f1, s.LastFrameNumber())

	f2, err := s.Post(context.Background(), []byte("second"))
	require.NoError(t, err)
	require.Greater(t, f2, f1)
	require.Equal(t, f2, s.LastFrameNumber())

	require.Equal(t, [][]byte{[]byte("first"), []byte("second")}, producer.Frames())
}

func TestSurface_postFailureLeavesFrameNumber(t *testing.T) {
	t.Parallel()

	producer := &prismtest.RecordingProducer{QueueToken: 9}
	s := pbuf.NewSurface(producer, false)

	_, err := s.Post(context.Background(), []byte("ok"))
	require.NoError(t, err)
	last := s.LastFrameNumber()

	producer.Err = errors.New("queue full")
	_, err = s.Post(context.Background(), []byte("rejected"))
	require.Error(t, err)
	require.Equal(t, last, s.LastFrameNumber())
}
