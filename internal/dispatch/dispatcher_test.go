package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ALEYI17/InfraSight_mon/internal/dispatch"
	"github.com/ALEYI17/InfraSight_mon/pkg/codec"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var bigMagic = codec.HostToNetworkU16(types.MON_ST_CHECK, mon.BigEndian)

func calibrate(t *testing.T, d *dispatch.Dispatcher, node uint16) {
	t.Helper()
	seq := []mon.Event{
		mon.NewStateEvent(0, 0, bigMagic, mon.NewTimestamp(0, 0), 0, node),
		mon.NewStateEvent(0, 0, 0, mon.NewTimestamp(100, 0.1), 0, node),
		mon.NewInfoEvent(0, 0, nil, mon.NewTimestamp(200, 0.2), 0, node),
		mon.NewInfoEvent(0, 0, []byte{1}, mon.NewTimestamp(250, 0.25), 0, node),
		mon.NewInfoEvent(0, 0, []byte{1, 2}, mon.NewTimestamp(310, 0.31), 0, node),
	}
	for _, ev := range seq {
		require.NoError(t, d.Record(ev))
	}
	require.True(t, d.Registry().Calibrated())
}

func st(node, state uint16) mon.Event {
	return mon.NewStateEvent(1, 1, state, mon.NewTimestamp(int64(state)*10, 0), 0, node)
}

// journal records calls across sinks so ordering can be asserted.
type journal struct {
	calls []string
}

type fakeSink struct {
	name      string
	j         *journal
	events    []mon.CalibratedEvent
	failAfter int
	finishErr error
	finished  int
}

func (s *fakeSink) Record(ev mon.CalibratedEvent) error {
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("disk full")
	}
	s.events = append(s.events, ev)
	s.j.calls = append(s.j.calls, fmt.Sprintf("%s.record(%d)", s.name, ev.State))
	return nil
}

func (s *fakeSink) Finish() error {
	s.finished++
	s.j.calls = append(s.j.calls, s.name+".finish")
	return s.finishErr
}

type fakeFactory struct {
	sink      *fakeSink
	createErr error
	created   []mon.Calibration
}

func (f *fakeFactory) Kind() string { return "fake-" + f.sink.name }

func (f *fakeFactory) Create(cal mon.Calibration) (types.Sink, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, cal)
	return f.sink, nil
}

func newFactory(name string, j *journal) *fakeFactory {
	return &fakeFactory{sink: &fakeSink{name: name, j: j}}
}

func newDispatcher(t *testing.T, skip dispatch.SkipPolicy) *dispatch.Dispatcher {
	t.Helper()
	stats, err := dispatch.NewStats(nil)
	require.NoError(t, err)
	return dispatch.New(skip, stats)
}

func states(evs []mon.CalibratedEvent) []uint16 {
	var out []uint16
	for _, ev := range evs {
		out = append(out, ev.State)
	}
	return out
}

func TestPendingSinkCreatedOnCalibration(t *testing.T) {
	j := &journal{}
	d := newDispatcher(t, dispatch.DiscardSkip{})
	f := newFactory("a", j)

	require.NoError(t, d.SelectSink(f))
	assert.True(t, d.Pending())
	assert.False(t, d.HasSink())

	calibrate(t, d, 7)
	assert.False(t, d.Pending())
	require.True(t, d.HasSink())
	require.Len(t, f.created, 1)
	assert.Equal(t, mon.BigEndian, f.created[0].Order)
	// Preamble events are consumed by calibration, never forwarded.
	assert.Empty(t, f.sink.events)

	require.NoError(t, d.Record(st(7, 42)))
	assert.Equal(t, []uint16{42}, states(f.sink.events))
	assert.Equal(t, int64(1), d.Stats().Snapshot().States)
}

func TestBufferedEventsReplayedInOrder(t *testing.T) {
	j := &journal{}
	buf := &dispatch.BufferSkip{}
	d := newDispatcher(t, buf)
	calibrate(t, d, 1)

	for _, s := range []uint16{1, 2, 3} {
		require.NoError(t, d.Record(st(1, s)))
	}
	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, int64(3), d.Stats().Snapshot().Skipped)

	f := newFactory("a", j)
	require.NoError(t, d.SelectSink(f))
	require.NoError(t, d.Record(st(1, 4)))

	assert.Equal(t, []uint16{1, 2, 3, 4}, states(f.sink.events))
	assert.Equal(t, 0, buf.Len())

	snap := d.Stats().Snapshot()
	assert.Equal(t, int64(3), snap.Skipped)
	assert.Equal(t, int64(1), snap.States)
	assert.Equal(t, int64(4), snap.Events)
	assert.Equal(t, int64(0), snap.Infos)
}

func TestSwapFinishesOldSinkFirst(t *testing.T) {
	j := &journal{}
	d := newDispatcher(t, dispatch.DiscardSkip{})
	calibrate(t, d, 1)

	a := newFactory("a", j)
	b := newFactory("b", j)
	require.NoError(t, d.SelectSink(a))
	require.NoError(t, d.Record(st(1, 1)))
	require.NoError(t, d.SelectSink(b))
	require.NoError(t, d.Record(st(1, 2)))

	assert.Equal(t, []string{"a.record(1)", "a.finish", "b.record(2)"}, j.calls)
	assert.Equal(t, 1, a.sink.finished)
	assert.Equal(t, 0, b.sink.finished)
}

func TestSinkErrorIsFatal(t *testing.T) {
	j := &journal{}
	d := newDispatcher(t, &dispatch.BufferSkip{})
	calibrate(t, d, 1)

	a := newFactory("a", j)
	a.sink.failAfter = 1
	require.NoError(t, d.SelectSink(a))
	require.NoError(t, d.Record(st(1, 1)))

	err := d.Record(st(1, 2))
	require.Error(t, err)
	assert.True(t, dispatch.IsFatal(err))
	var fe *dispatch.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "record", fe.Op)
	assert.Equal(t, 1, a.sink.finished, "failing sink must release its resources")
	assert.False(t, d.HasSink())

	// Nothing reaches any sink afterwards.
	b := newFactory("b", j)
	assert.ErrorIs(t, d.SelectSink(b), dispatch.ErrFatal)
	assert.ErrorIs(t, d.Record(st(1, 3)), dispatch.ErrFatal)
	assert.Empty(t, b.created)
	assert.Empty(t, b.sink.events)
	assert.Equal(t, []uint16{1}, states(a.sink.events))
	assert.Equal(t, err, d.Err())
}

func TestCreateErrorIsFatal(t *testing.T) {
	d := newDispatcher(t, dispatch.DiscardSkip{})
	f := newFactory("a", &journal{})
	f.createErr = errors.New("permission denied")
	require.NoError(t, d.SelectSink(f))

	var err error
	seq := []mon.Event{
		mon.NewStateEvent(0, 0, bigMagic, mon.NewTimestamp(0, 0), 0, 1),
		mon.NewStateEvent(0, 0, 0, mon.NewTimestamp(100, 0), 0, 1),
		mon.NewInfoEvent(0, 0, nil, mon.NewTimestamp(200, 0), 0, 1),
		mon.NewInfoEvent(0, 0, []byte{1}, mon.NewTimestamp(250, 0), 0, 1),
		mon.NewInfoEvent(0, 0, []byte{1, 2}, mon.NewTimestamp(310, 0), 0, 1),
	}
	for _, ev := range seq {
		err = d.Record(ev)
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, dispatch.ErrFatal)
	assert.ErrorIs(t, err, f.createErr)
}

func TestFinishErrorIsFatal(t *testing.T) {
	j := &journal{}
	d := newDispatcher(t, dispatch.DiscardSkip{})
	calibrate(t, d, 1)
	a := newFactory("a", j)
	a.sink.finishErr = errors.New("close error")
	require.NoError(t, d.SelectSink(a))

	err := d.Close()
	assert.ErrorIs(t, err, dispatch.ErrFatal)
	assert.Equal(t, 1, a.sink.finished)
	assert.False(t, d.HasSink())
}

func TestDisabledSkips(t *testing.T) {
	j := &journal{}
	d := newDispatcher(t, dispatch.DiscardSkip{})
	calibrate(t, d, 1)
	a := newFactory("a", j)
	require.NoError(t, d.SelectSink(a))

	d.SetEnabled(false)
	require.NoError(t, d.Record(st(1, 1)))
	d.SetEnabled(true)
	require.NoError(t, d.Record(st(1, 2)))

	assert.Equal(t, []uint16{2}, states(a.sink.events))
	snap := d.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Skipped)
	assert.Equal(t, int64(1), snap.States)
	assert.Equal(t, int64(2), snap.Events)
}

type spySkip struct {
	dispatch.DiscardSkip
	removed []uuid.UUID
	created []uuid.UUID
}

func (s *spySkip) SinkRemoved(id uuid.UUID) { s.removed = append(s.removed, id) }
func (s *spySkip) SinkCreated(id uuid.UUID, _ func(mon.CalibratedEvent) error) error {
	s.created = append(s.created, id)
	return nil
}

func TestCloseNotifiesSkipPolicy(t *testing.T) {
	spy := &spySkip{}
	d := newDispatcher(t, spy)
	calibrate(t, d, 1)
	a := newFactory("a", &journal{})
	require.NoError(t, d.SelectSink(a))
	require.NoError(t, d.Close())

	assert.Equal(t, 1, a.sink.finished)
	require.Len(t, spy.removed, 1)
	assert.Equal(t, spy.created, spy.removed)
	assert.NotEqual(t, uuid.Nil, spy.removed[0])

	// Close without a sink is a no-op.
	require.NoError(t, d.Close())
	assert.Len(t, spy.removed, 1)
}

func TestCloseDropsPendingSink(t *testing.T) {
	d := newDispatcher(t, dispatch.DiscardSkip{})
	f := newFactory("a", &journal{})
	require.NoError(t, d.SelectSink(f))
	require.NoError(t, d.Close())
	calibrate(t, d, 1)
	assert.Empty(t, f.created)
}

func TestUncalibratedNodesNeverForwarded(t *testing.T) {
	d := newDispatcher(t, dispatch.DiscardSkip{})
	calibrate(t, d, 1)
	a := newFactory("a", &journal{})
	require.NoError(t, d.SelectSink(a))

	// Node 2 opens with an info event and is disabled.
	require.NoError(t, d.Record(mon.NewInfoEvent(0, 0, nil, mon.Timestamp{}, 0, 2)))
	require.NoError(t, d.Record(st(2, 5)))
	assert.Empty(t, a.sink.events)
	assert.Equal(t, int64(0), d.Stats().Snapshot().Skipped)
}

func TestWarnSkipLogs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	prev := logutil.GetLogger()
	logutil.SetLogger(zap.New(core))
	defer logutil.SetLogger(prev)

	d := newDispatcher(t, dispatch.WarnSkip{})
	calibrate(t, d, 3)
	require.NoError(t, d.Record(st(3, 1)))
	require.NoError(t, d.Record(st(3, 2)))

	skipped := logs.FilterMessage("event skipped").All()
	require.Len(t, skipped, 2)
	assert.Equal(t, int64(3), int64(skipped[0].ContextMap()["node"].(uint16)))
}

func TestNewSkipPolicy(t *testing.T) {
	for _, k := range []string{types.SkipDiscard, types.SkipBuffer, types.SkipWarn} {
		p, err := dispatch.NewSkipPolicy(k)
		require.NoError(t, err)
		assert.Equal(t, k, p.Kind())
	}
	_, err := dispatch.NewSkipPolicy("shred")
	assert.Error(t, err)
}

func TestStatsExportMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	stats, err := dispatch.NewStats(mp.Meter("test"))
	require.NoError(t, err)

	stats.IncStates()
	stats.IncInfos()
	stats.IncInfos()
	stats.IncSkipped()
	stats.IncNodes()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	totals := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok, m.Name)
		for _, dp := range sum.DataPoints {
			totals[m.Name] += dp.Value
		}
	}
	assert.Equal(t, int64(3), totals["mon.events.recorded"])
	assert.Equal(t, int64(1), totals["mon.events.skipped"])
	assert.Equal(t, int64(1), totals["mon.nodes"])

	snap := stats.Snapshot()
	assert.Equal(t, dispatch.StatsSnapshot{Events: 4, States: 1, Infos: 2, Skipped: 1, Nodes: 1}, snap)

	stats.Restore(5, 6, 7)
	assert.Equal(t, int64(18), stats.Snapshot().Events)
}
