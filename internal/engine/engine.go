package engine

import (
	"context"
	"time"

	maelstrom "github.com/jepsen-io/maelstrom/demo/go"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/objectfs/meshcast/internal/config"
	"github.com/objectfs/meshcast/internal/dedup"
	"github.com/objectfs/meshcast/internal/logging"
	"github.com/objectfs/meshcast/internal/metrics"
	"github.com/objectfs/meshcast/internal/protocol"
	"github.com/objectfs/meshcast/internal/readbus"
	"github.com/objectfs/meshcast/internal/retrybus"
	"github.com/objectfs/meshcast/internal/topology"
	"github.com/objectfs/meshcast/pkg/errors"
)

// Sender delivers an outbound envelope.
type Sender interface {
	Send(msg maelstrom.Message) error
}

// Options configures an Engine.
type Options struct {
	NodeID  string
	NodeIDs []string
	Config  *config.Configuration
	Clock   clockwork.Clock
	Sender  Sender
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Engine owns all dissemination state of one node. Handle, Tick and Run
// must be called from a single goroutine.
type Engine struct {
	id      string
	cfg     config.DisseminationConfig
	clock   clockwork.Clock
	sender  Sender
	logger  *zap.Logger
	metrics *metrics.Collector

	topology *topology.Manager
	values   *dedup.Store
	peers    *retrybus.Bus[maelstrom.Message]
	reads    *readbus.Bus
}

// New creates an engine for the node identified in opts. In partition mode
// the initial links are derived from the membership right away; otherwise
// the node has no links until the first topology message.
func New(opts Options) (*Engine, error) {
	if opts.NodeID == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "node id is required").
			WithComponent("engine").
			WithOperation("new")
	}
	if opts.Sender == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "sender is required").
			WithComponent("engine").
			WithOperation("new")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := opts.Metrics
	if collector == nil {
		var err error
		if collector, err = metrics.NewCollector(&metrics.Config{Enabled: false}, logger); err != nil {
			return nil, err
		}
	}
	logger = logging.ForNode(logger, opts.NodeID)

	e := &Engine{
		id:      opts.NodeID,
		cfg:     cfg.Dissemination,
		clock:   clock,
		sender:  opts.Sender,
		logger:  logger.Named("engine"),
		metrics: collector,
		values:  dedup.New(),
		peers:   retrybus.New[maelstrom.Message](clock, cfg.Dissemination.RetryInterval),
		reads:   readbus.New(clock, cfg.Dissemination.ReadSettle),
	}
	e.topology = topology.NewManager(cfg.Topology, e.peers, logger)
	e.topology.SetMembership(opts.NodeIDs)

	if cfg.Topology.Mode == config.ModePartition && len(opts.NodeIDs) > 0 {
		e.topology.ComputeLinks(e.id, opts.NodeIDs, nil)
	}
	e.updateGauges()
	return e, nil
}

// ID returns the node identity.
func (e *Engine) ID() string {
	return e.id
}

// Links returns the current peer links.
func (e *Engine) Links() []string {
	return e.topology.Links()
}

// Values returns the known values in ascending order.
func (e *Engine) Values() []uint64 {
	return e.values.Snapshot()
}

// Pending returns the number of unacknowledged peer messages.
func (e *Engine) Pending() int {
	return e.peers.Pending()
}

// PendingReads returns the number of deferred client reads.
func (e *Engine) PendingReads() int {
	return e.reads.Len()
}

// Tick services at most one due retransmission and at most one settled
// client read.
func (e *Engine) Tick() error {
	if msg, ok := e.peers.DueRetry(); ok {
		if err := e.sender.Send(msg); err != nil {
			return err
		}
		e.metrics.RecordSent(protocol.TypeBroadcast, metrics.ModeRetry)
		e.logger.Debug("retransmitted", zap.String("peer", msg.Dest), zap.ByteString("body", msg.Body))
	}

	if reply, ok := e.reads.Poll(e.values.Snapshot); ok {
		err := e.send(reply.To, &protocol.ReadOKBody{
			Header:   protocol.Header{InReplyTo: reply.InReplyTo},
			Messages: reply.Values,
		}, metrics.ModeReply)
		if err != nil {
			return err
		}
	}

	e.updateGauges()
	return nil
}

// Run drives the engine until ctx is cancelled, inbound is closed, or a
// fatal error occurs. Each iteration handles one queued inbound message or,
// when none is queued, performs one Tick and then waits up to the idle poll
// interval for input. After inbound closes, the terminal error from errs is
// returned unless it only signals the end of input.
func (e *Engine) Run(ctx context.Context, inbound <-chan maelstrom.Message, errs <-chan error) error {
	idle := e.cfg.IdlePoll
	if idle <= 0 {
		idle = time.Millisecond
	}

	e.logger.Info("engine started",
		zap.Strings("links", e.topology.Links()),
		zap.Duration("retry_interval", e.cfg.RetryInterval),
		zap.Duration("read_settle", e.cfg.ReadSettle))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return e.closed(ctx, errs)
			}
			if err := e.Handle(msg); err != nil {
				return err
			}
			continue
		default:
		}

		if err := e.Tick(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return e.closed(ctx, errs)
			}
			if err := e.Handle(msg); err != nil {
				return err
			}
		case <-e.clock.After(idle):
		}
	}
}

func (e *Engine) closed(ctx context.Context, errs <-chan error) error {
	if errs == nil {
		return nil
	}
	select {
	case err := <-errs:
		if code, ok := errors.CodeOf(err); ok && code == errors.ErrCodeTransportClosed {
			e.logger.Info("input closed, stopping",
				zap.Int("known_values", e.values.Len()),
				zap.Int("inflight", e.peers.Pending()))
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) updateGauges() {
	e.metrics.UpdateInflight(e.peers.Pending())
	e.metrics.UpdateKnownValues(e.values.Len())
	e.metrics.UpdatePendingReads(e.reads.Len())
	e.metrics.UpdateLinks(len(e.topology.Links()))
}
