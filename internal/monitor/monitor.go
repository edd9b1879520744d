// Package monitor is the host facing side of the event pipeline: nodes are
// attached and detached, producers report events, the host picks the sink
// and persists its settings. All methods are safe for concurrent use.
package monitor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ALEYI17/InfraSight_mon/internal/collector"
	"github.com/ALEYI17/InfraSight_mon/internal/config"
	"github.com/ALEYI17/InfraSight_mon/internal/dispatch"
	"github.com/ALEYI17/InfraSight_mon/internal/sinks"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"github.com/ALEYI17/InfraSight_mon/pkg/mon"
	"github.com/ALEYI17/InfraSight_mon/pkg/types"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultOutput = "monitor.trace"

var ErrNodeCapacity = errors.New("node id too large for the monitor")

type Options struct {
	Skip    string
	Enabled bool
	// Sinks.Path is the initial output; DefaultOutput when empty.
	Sinks sinks.Options
	Meter metric.Meter
}

type Monitor struct {
	mu sync.Mutex

	dispatch *dispatch.Dispatcher
	summary  *collector.Aggregator
	nodes    map[uint16]struct{}
	// dropped remembers unattached producers already logged.
	dropped map[uint16]struct{}

	sinkOpts sinks.Options
	sinkKind string
}

func New(opts Options) (*Monitor, error) {
	skip, err := dispatch.NewSkipPolicy(opts.Skip)
	if err != nil {
		return nil, err
	}
	stats, err := dispatch.NewStats(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("monitor stats: %w", err)
	}

	m := &Monitor{
		dispatch: dispatch.New(skip, stats),
		summary:  collector.NewAggregator(),
		nodes:    make(map[uint16]struct{}),
		dropped:  make(map[uint16]struct{}),
		sinkOpts: opts.Sinks,
	}
	if m.sinkOpts.Path == "" {
		m.sinkOpts.Path = DefaultOutput
	}
	m.dispatch.SetEnabled(opts.Enabled)

	logutil.GetLogger().Info("Monitor created",
		zap.String("skip", skip.Kind()),
		zap.String("output", m.sinkOpts.Path),
		zap.Bool("enabled", opts.Enabled))
	return m, nil
}

// AddNode attaches a node. IDs beyond the 16-bit signed range are logged
// and rejected with an error wrapping ErrNodeCapacity.
func (m *Monitor) AddNode(id int) error {
	node, err := mon.CheckNodeID(id)
	if err != nil {
		logutil.GetLogger().Error("Node ID too large, node not monitored", zap.Int("node", id))
		return fmt.Errorf("%w: %w", ErrNodeCapacity, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[node]; ok {
		return nil
	}
	m.nodes[node] = struct{}{}
	delete(m.dropped, node)
	m.dispatch.Stats().IncNodes()
	logutil.GetLogger().Info("Add monitor to node", zap.Uint16("node", node))
	return nil
}

// RemoveNode detaches a node. Its calibration is dropped so a node
// attached again under the same ID runs its preamble anew.
func (m *Monitor) RemoveNode(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[id]; !ok {
		return
	}
	delete(m.nodes, id)
	m.dispatch.Registry().Forget(id)
	m.summary.Forget(id)
	m.dispatch.Stats().DecNodes()
	logutil.GetLogger().Info("Removing monitor from node", zap.Uint16("node", id))
}

func (m *Monitor) Nodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// attached reports whether node may produce events. Events of nodes that
// were never attached, including IDs beyond MaxNodeID, are dropped and
// logged once per node.
func (m *Monitor) attached(node uint16) bool {
	if _, ok := m.nodes[node]; ok {
		return true
	}
	if _, ok := m.dropped[node]; !ok {
		m.dropped[node] = struct{}{}
		logutil.GetLogger().Warn("Dropping events of unattached node",
			zap.Uint16("node", node),
			zap.Bool("in_range", node <= mon.MaxNodeID))
	}
	return false
}

func (m *Monitor) OnState(context, entity, state uint16, ts mon.Timestamp, simTime int64, node uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached(node) {
		return m.dispatch.Err()
	}
	return m.dispatch.Record(mon.NewStateEvent(context, entity, state, ts, simTime, node))
}

func (m *Monitor) OnInfo(context, entity uint16, payload []byte, ts mon.Timestamp, simTime int64, node uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached(node) {
		return m.dispatch.Err()
	}
	return m.dispatch.Record(mon.NewInfoEvent(context, entity, payload, ts, simTime, node))
}

// SelectSink switches to a sink of the given kind writing to output. An
// empty output keeps the current one.
func (m *Monitor) SelectSink(kind, output string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	opts := m.sinkOpts
	if output != "" {
		opts.Path = output
	}
	f, err := sinks.NewSinkFactory(kind, opts)
	if err != nil {
		return fmt.Errorf("select sink %q: %w", kind, err)
	}
	if err := m.dispatch.SelectSink(collector.Tee(f, m.summary)); err != nil {
		return err
	}

	m.sinkOpts = opts
	m.sinkKind = kind
	if kind == types.SinkFile || kind == types.SinkTrace {
		logutil.GetLogger().Info("Monitor sink selected", zap.String("sink", kind), zap.String("output", opts.Path))
	} else {
		logutil.GetLogger().Info("Monitor sink selected", zap.String("sink", kind))
	}
	return nil
}

func (m *Monitor) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatch.SetEnabled(enabled)
}

func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatch.Enabled()
}

func (m *Monitor) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sinkOpts.Path
}

// Err is the fatal sink error that ended the run, if any.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatch.Err()
}

// Close flushes and closes the current sink.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatch.Close()
}

// Stats can be read while producers record.
func (m *Monitor) Stats() dispatch.StatsSnapshot {
	return m.dispatch.Stats().Snapshot()
}

func (m *Monitor) Summaries() *collector.Aggregator { return m.summary }

// ApplySettings restores a previous run. Malformed counters are logged and
// start from zero.
func (m *Monitor) ApplySettings(s *config.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := logutil.GetLogger()
	if s.Output != "" {
		m.sinkOpts.Path = s.Output
	}
	m.dispatch.SetEnabled(s.Enabled)

	c, err := s.Counters()
	for _, e := range multierr.Errors(err) {
		logger.Error("Invalid counter in settings", zap.Error(e))
	}
	m.dispatch.Stats().Restore(c.States, c.Infos, c.Skipped)
}

func (m *Monitor) Settings() *config.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.dispatch.Stats().Snapshot()
	s := &config.Settings{
		Output:  m.sinkOpts.Path,
		Enabled: m.dispatch.Enabled(),
	}
	s.SetCounters(config.Counters{States: snap.States, Infos: snap.Infos, Skipped: snap.Skipped})
	return s
}

// SinkKind is the kind of the last selected sink.
func (m *Monitor) SinkKind() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sinkKind
}
