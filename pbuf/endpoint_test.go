package pbuf_test

import (
	"context"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/prism-engine/prism/pbuf"
	"github.com/prism-engine/prism/prismtest"
	"github.com/stretchr/testify/require"
)

func newTestEndpoint(t *testing.T, cfg pbuf.EndpointConfig) (*pbuf.Endpoint, *prismtest.DatagramRecorder) {
	t.Helper()

	rec := new(prismtest.DatagramRecorder)

	if cfg.Token == 0 {
		cfg.Token = 0xabcd
	}
	cfg.Transport = rec
	if cfg.Slots == 0 {
		cfg.Slots = 8
	}
	if cfg.MaxShardSize == 0 {
		cfg.MaxShardSize = 64
	}
	if cfg.DataShards == 0 {
		cfg.DataShards = 4
	}
	if cfg.ParityShards == 0 {
		cfg.ParityShards = 2
	}

	e, err := pbuf.NewEndpoint(slogt.New(t), cfg)
	require.NoError(t, err)
	return e, rec
}

func TestEndpoint_connectDisconnectMessages(t *testing.T) {
	t.Parallel()

	e, rec := newTestEndpoint(t, pbuf.EndpointConfig{Token: 0x5150})

	require.NoError(t, e.Connect(pbuf.APIEGL))

	// A second API is refused while EGL holds the connection.
	err := e.Connect(pbuf.APICPU)
	var already pbuf.AlreadyConnectedError
	require.ErrorAs(t, err, &already)
	require.Equal(t, pbuf.APIEGL, already.Connected)
	require.Equal(t, pbuf.APICPU, already.Requested)

	// The sentinel resolves to whatever is connected.
	require.NoError(t, e.Disconnect(pbuf.CurrentlyConnectedAPI))

	ds := rec.Datagrams()
	require.Len(t, ds, 2)

	connect, err := pbuf.ParseControl(ds[0])
	require.NoError(t, err)
	require.Equal(t, pbuf.ControlMessage{Token: 0x5150, API: pbuf.APIEGL}, connect)

	disconnect, err := pbuf.ParseControl(ds[1])
	require.NoError(t, err)
	require.Equal(t, pbuf.ControlMessage{
		Token:      0x5150,
		Disconnect: true,
		API:        pbuf.APIEGL,
	}, disconnect)
}

func TestEndpoint_disconnectWithNothingConnected(t *testing.T) {
	t.Parallel()

	e, rec := newTestEndpoint(t, pbuf.EndpointConfig{})

	// The sentinel with nothing connected is a no-op, not a failure.
	require.NoError(t, e.Disconnect(pbuf.CurrentlyConnectedAPI))
	require.Empty(t, rec.Datagrams())

	// A named API that is not connected is a failure.
	err := e.Disconnect(pbuf.APIMedia)
	var mismatch pbuf.DisconnectMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestEndpoint_smallFrameSingleDatagram(t *testing.T) {
	t.Parallel()

	e, rec := newTestEndpoint(t, pbuf.EndpointConfig{MaxShardSize: 128})

	payload := []byte("one small frame")
	frame, err := e.QueueFrame(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, uint64(1), frame)

	ds := rec.Datagrams()
	require.Len(t, ds, 1)

	shard, err := pbuf.ParseFrameShard(ds[0])
	require.NoError(t, err)
	require.Equal(t, uint64(0xabcd), shard.Token)
	require.Equal(t, uint64(1), shard.Frame)
	require.Equal(t, uint16(1), shard.DataShards)
	require.Equal(t, uint16(0), shard.ParityShards)
	require.Equal(t, payload, shard.Payload)
}

func TestEndpoint_largeFrameShardsAndReconstructs(t *testing.T) {
	t.Parallel()

	e, rec := newTestEndpoint(t, pbuf.EndpointConfig{
		MaxShardSize: 64,
		DataShards:   4,
		ParityShards: 2,
	})

	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i * 31)
	}

	frame, err := e.QueueFrame(context.Background(), payload)
	require.NoError(t, err)

	ds := rec.Datagrams()
	require.Len(t, ds, 6)

	shards := make([][]byte, 6)
	for _, d := range ds {
		shard, err := pbuf.ParseFrameShard(d)
		require.NoError(t, err)
		require.Equal(t, frame, shard.Frame)
		require.Equal(t, uint16(4), shard.DataShards)
		require.Equal(t, uint16(2), shard.ParityShards)
		require.Equal(t, uint32(len(payload)), shard.OrigLen)
		shards[shard.Index] = shard.Payload
	}

	// Drop as many shards as there is parity; the frame must
	// still come back.
	shards[0] = nil
	shards[3] = nil

	got, err := pbuf.JoinFrame(shards, 4, 2, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestJoinFrame_noShards(t *testing.T) {
	t.Parallel()

	_, err := pbuf.JoinFrame(nil, 1, 0, 10)
	require.Error(t, err)

	_, err = pbuf.JoinFrame([][]byte{}, 1, 0, 10)
	require.Error(t, err)
}

func TestEndpoint_slotExhaustion(t *testing.T) {
	t.Parallel()

	e, _ := newTestEndpoint(t, pbuf.EndpointConfig{Slots: 2})

	ctx := context.Background()

	f1, err := e.QueueFrame(ctx, []byte("a"))
	require.NoError(t, err)
	_, err = e.QueueFrame(ctx, []byte("b"))
	require.NoError(t, err)
	require.Equal(t, 2, e.InFlight())

	_, err = e.QueueFrame(ctx, []byte("c"))
	var exhausted pbuf.SlotsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, uint(2), exhausted.Slots)

	// Completion frees a slot for the next frame.
	e.CompleteFrame(f1)
	require.Equal(t, 1, e.InFlight())

	_, err = e.QueueFrame(ctx, []byte("c"))
	require.NoError(t, err)

	// Completing an unknown frame changes nothing.
	e.CompleteFrame(999)
	require.Equal(t, 2, e.InFlight())
}

func TestEndpoint_sendFailureFreesSlot(t *testing.T) {
	t.Parallel()

	rec := new(prismtest.DatagramRecorder)
	e, err := pbuf.NewEndpoint(slogt.New(t), pbuf.EndpointConfig{
		Token:        1,
		Transport:    rec,
		Slots:        1,
		MaxShardSize: 64,
		DataShards:   2,
		ParityShards: 1,
	})
	require.NoError(t, err)

	rec.Err = context.DeadlineExceeded
	_, err = e.QueueFrame(context.Background(), []byte("frame"))
	require.Error(t, err)
	require.Equal(t, 0, e.InFlight())

	// The slot is usable again once the transport recovers.
	rec.Err = nil
	_, err = e.QueueFrame(context.Background(), []byte("frame"))
	require.NoError(t, err)
}

func TestEndpoint_disconnectDropsInFlight(t *testing.T) {
	t.Parallel()

	e, _ := newTestEndpoint(t, pbuf.EndpointConfig{Slots: 2})

	require.NoError(t, e.Connect(pbuf.APICPU))
	_, err := e.QueueFrame(context.Background(), []byte("a"))
	require.NoError(t, err)
	require.Equal(t, 1, e.InFlight())

	require.NoError(t, e.Disconnect(pbuf.APICPU))
	require.Equal(t, 0, e.InFlight())
}

func TestNewEndpoint_panicsOnBadConfig(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		pbuf.NewEndpoint(slogt.New(t), pbuf.EndpointConfig{})
	})
}
