package prism_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/prism-engine/prism"
	"github.com/prism-engine/prism/pbuf"
	"github.com/prism-engine/prism/prismtest"
	"github.com/stretchr/testify/require"
)

func newTestControl(t *testing.T) (*prism.Control, *prismtest.RecordingConn, *prismtest.RecordingProducer) {
	t.Helper()

	conn := new(prismtest.RecordingConn)
	producer := &prismtest.RecordingProducer{QueueToken: 0xbeef}
	c := prism.NewControl(slogt.New(t), conn, prism.NewHandle(), producer)

	// Settle teardown within the test so the finalizer path
	// cannot touch the test logger later.
	t.Cleanup(c.Destroy)

	return c, conn, producer
}

func TestNewControl_panicsOnNilReferences(t *testing.T) {
	t.Parallel()

	log := slogt.New(t)
	conn := new(prismtest.RecordingConn)
	producer := new(prismtest.RecordingProducer)
	h := prism.NewHandle()

	require.Panics(t, func() {
		prism.NewControl(log, nil, h, producer)
	})
	require.Panics(t, func() {
		prism.NewControl(log, conn, nil, producer)
	})
	require.Panics(t, func() {
		prism.NewControl(log, conn, h, nil)
	})
}

func TestControl_teardownRacesForwardedCalls(t *testing.T) {
	t.Parallel()

	// Mutations, disconnects, and teardown from separate goroutines
	// must never crash; calls landing after teardown fail validation
	// instead. Meaningful under the race detector.
	c, _, _ := newTestControl(t)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for range 100 {
			err := c.SetAlpha(0.5)
			if err == nil {
				continue
			}
			var uninit prism.UninitializedError
			if !errors.As(err, &uninit) {
				t.Errorf("expected UninitializedError, got %v", err)
			}
			return
		}
	}()
	go func() {
		defer wg.Done()
		for range 100 {
			c.Disconnect()
		}
	}()
	go func() {
		defer wg.Done()
		c.Destroy()
	}()
	wg.Wait()

	require.Nil(t, c.GetHandle())
}

func TestControl_forwardsWithHandleAndResult(t *testing.T) {
	t.Parallel()

	c, conn, _ := newTestControl(t)
	h := c.GetHandle()

	require.NoError(t, c.SetAlpha(0.5))

	calls := conn.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "SetAlpha", calls[0].Method)
	require.Same(t, h, calls[0].Handle)
	require.Equal(t, []any{float32(0.5)}, calls[0].Args)
}

func TestControl_passesRemoteFailureThrough(t *testing.T) {
	t.Parallel()

	c, conn, _ := newTestControl(t)

	remoteErr := errors.New("compositor said no")
	conn.Err = remoteErr

	require.ErrorIs(t, c.SetLayer(3), remoteErr)

	// The call still went out; nothing local interprets the failure.
	require.Len(t, conn.Calls(), 1)
}

func TestControl_Destroy_releasesThenFlushes(t *testing.T) {
	t.Parallel()

	c, conn, _ := newTestControl(t)
	h := c.GetHandle()

	require.NoError(t, c.SetPosition(10, 20))
	c.Destroy()

	calls := conn.Calls()
	require.Len(t, calls, 3)
	require.Equal(t, "SetPosition", calls[0].Method)
	require.Equal(t, "DestroySurface", calls[1].Method)
	require.Same(t, h, calls[1].Handle)
	require.Equal(t, "Flush", calls[2].Method)

	require.Nil(t, c.GetHandle())
}

func TestControl_Destroy_idempotent(t *testing.T) {
	t.Parallel()

	c, conn, _ := newTestControl(t)

	for i := 0; i < 4; i++ {
		c.Destroy()
	}

	destroys := 0
	for _, call := range conn.Calls() {
		if call.Method == "DestroySurface" {
			destroys++
		}
	}
	require.Equal(t, 1, destroys)
	require.Nil(t, c.GetHandle())
}

func TestControl_Clear_sameAsDestroy(t *testing.T) {
	t.Parallel()

	c, conn, _ := newTestControl(t)
	h := c.GetHandle()

	c.Clear()

	calls := conn.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "DestroySurface", calls[0].Method)
	require.Same(t, h, calls[0].Handle)
	require.Equal(t, "Flush", calls[1].Method)
	require.Nil(t, c.GetHandle())

	// And still idempotent through the other entry point.
	c.Destroy()
	require.Len(t, conn.Calls(), len(calls))
}

func TestControl_validationGate(t *testing.T) {
	t.Parallel()

	c, conn, _ := newTestControl(t)
	other := prism.NewHandle()

	c.Destroy()
	recorded := len(conn.Calls())

	muts := []struct {
		name string
		call func() error
	}{
		{"SetLayerStack", func() error { return c.SetLayerStack(1) }},
		{"SetLayer", func() error { return c.SetLayer(1) }},
		{"SetRelativeLayer", func() error { return c.SetRelativeLayer(other, 1) }},
		{"SetPosition", func() error { return c.SetPosition(1, 2) }},
		{"SetSize", func() error { return c.SetSize(3, 4) }},
		{"SetGeometryAppliesWithResize", c.SetGeometryAppliesWithResize},
		{"Show", c.Show},
		{"Hide", c.Hide},
		{"SetFlags", func() error { return c.SetFlags(prism.LayerOpaque, prism.LayerOpaque) }},
		{"SetTransparentRegionHint", func() error {
			return c.SetTransparentRegionHint(prism.Region{{Right: 1, Bottom: 1}})
		}},
		{"SetAlpha", func() error { return c.SetAlpha(1) }},
		{"SetMatrix", func() error { return c.SetMatrix(1, 0, 0, 1) }},
		{"SetCrop", func() error { return c.SetCrop(prism.Rect{Right: 8, Bottom: 8}) }},
		{"SetFinalCrop", func() error { return c.SetFinalCrop(prism.Rect{Right: 8, Bottom: 8}) }},
		{"DeferTransactionUntil", func() error { return c.DeferTransactionUntil(other, 7) }},
		{"DeferTransactionUntilSurface", func() error {
			return c.DeferTransactionUntilSurface(pbuf.NewSurface(nil, false), 7)
		}},
		{"ReparentChildren", func() error { return c.ReparentChildren(other) }},
		{"DetachChildren", c.DetachChildren},
		{"SetOverrideScalingMode", func() error {
			return c.SetOverrideScalingMode(prism.ScalingModeScaleCrop)
		}},
		{"ClearLayerFrameStats", c.ClearLayerFrameStats},
		{"GetLayerFrameStats", func() error {
			return c.GetLayerFrameStats(new(prism.FrameStats))
		}},
	}

	for _, m := range muts {
		err := m.call()

		var uninit prism.UninitializedError
		require.ErrorAs(t, err, &uninit, "method %s", m.name)
		require.False(t, uninit.HaveHandle, "method %s", m.name)
		require.False(t, uninit.HaveConn, "method %s", m.name)
	}

	// No call reached the session.
	require.Len(t, conn.Calls(), recorded)
}

func TestControl_Disconnect(t *testing.T) {
	t.Parallel()

	c, _, producer := newTestControl(t)

	c.Disconnect()
	require.Equal(t, []pbuf.API{pbuf.CurrentlyConnectedAPI}, producer.Disconnects())

	// Disconnect does not tear the control down.
	require.NotNil(t, c.GetHandle())
	require.NoError(t, c.Show())

	// After teardown there is no producer left to disconnect.
	c.Destroy()
	c.Disconnect()
	require.Len(t, producer.Disconnects(), 1)
}

func TestControl_surfaceMemoization(t *testing.T) {
	t.Parallel()

	c, _, producer := newTestControl(t)

	s1 := c.GetSurface()
	require.NotNil(t, s1)
	require.Same(t, s1, c.GetSurface())

	// Property traffic must not invalidate the cached surface.
	require.NoError(t, c.SetAlpha(0.25))
	require.Same(t, s1, c.GetSurface())

	s2 := c.CreateSurface()
	require.NotNil(t, s2)
	require.NotSame(t, s1, s2)
	require.Same(t, s2, c.GetSurface())

	// The surface captured the producer at creation time.
	require.Same(t, pbuf.Producer(producer), s1.Producer())
	require.Same(t, pbuf.Producer(producer), s2.Producer())
}

func TestSameSurface(t *testing.T) {
	t.Parallel()

	log := slogt.New(t)
	conn := new(prismtest.RecordingConn)
	h := prism.NewHandle()

	a := prism.NewControl(log, conn, h, &prismtest.RecordingProducer{QueueToken: 1})
	b := prism.NewControl(log, conn, h, &prismtest.RecordingProducer{QueueToken: 2})
	t.Cleanup(a.Destroy)
	t.Cleanup(b.Destroy)

	// Same handle, same layer, even across distinct controls.
	require.True(t, prism.SameSurface(a, b))
	require.True(t, prism.SameSurface(a, a))

	// An equal-looking but distinct handle is a different layer.
	other := prism.NewControl(log, conn, prism.NewHandle(), &prismtest.RecordingProducer{QueueToken: 1})
	t.Cleanup(other.Destroy)
	require.False(t, prism.SameSurface(a, other))

	require.False(t, prism.SameSurface(nil, a))
	require.False(t, prism.SameSurface(a, nil))
	require.False(t, prism.SameSurface(nil, nil))
}

func TestUninitializedError_messages(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"surface control not initialized: no handle, no connection",
		prism.UninitializedError{}.Error(),
	)
	require.Equal(t,
		"surface control not initialized: no handle",
		prism.UninitializedError{HaveConn: true}.Error(),
	)
	require.Equal(t,
		"surface control not initialized: no connection",
		prism.UninitializedError{HaveHandle: true}.Error(),
	)
}
