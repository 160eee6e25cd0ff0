// Package recon reconciles a block proposed by one peer with the transaction
// pool of another. The receiver first recovers the block content with a
// filter and a difference sketch over short identifiers, then repairs the
// block order one hash tree level at a time from sketches of sibling pairs
// that the sender pushes at a fixed cadence.
package recon

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/log"
	"github.com/spacemeshos/gluon/recon/ptree"
	"github.com/spacemeshos/gluon/recon/wire"
)

// Opt configures a Peer.
type Opt func(*Peer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(p *Peer) {
		p.logger = logger
	}
}

// WithConfig sets the reconciliation parameters.
func WithConfig(cfg Config) Opt {
	return func(p *Peer) {
		p.cfg = cfg
	}
}

func withClock(clock clockwork.Clock) Opt {
	return func(p *Peer) {
		p.clock = clock
	}
}

// Peer runs reconciliation sessions over its pool and candidate block. A Peer
// runs one session at a time.
type Peer struct {
	logger *zap.Logger
	cfg    Config
	clock  clockwork.Clock
	pool   *TxPool
	block  []types.Hash32
	tree   *ptree.Tree
}

// NewPeer creates a peer holding pool. block is the block to send; it is
// ignored when the peer receives.
func NewPeer(pool *TxPool, block []types.Hash32, opts ...Opt) *Peer {
	p := &Peer{
		logger: zap.NewNop(),
		cfg:    DefaultConfig(),
		clock:  clockwork.NewRealClock(),
		pool:   pool,
		block:  slices.Clone(block),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tree = ptree.FromLeaves(p.block)
	return p
}

// Pool returns the transaction pool.
func (p *Peer) Pool() *TxPool {
	return p.pool
}

// Block returns the current candidate block.
func (p *Peer) Block() []types.Hash32 {
	return slices.Clone(p.block)
}

// Payloads returns the payloads of the candidate block in order.
func (p *Peer) Payloads() ([][]byte, error) {
	out := make([][]byte, len(p.block))
	for i, id := range p.block {
		payload, ok := p.pool.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingPayload, id.ShortString())
		}
		out[i] = payload
	}
	return out, nil
}

// Root returns the tree root of the candidate block.
func (p *Peer) Root() types.Hash32 {
	return ptree.RootOf(p.block)
}

type session struct {
	logger  *zap.Logger
	conduit *wire.Conduit
	in      *inbox
	eg      errgroup.Group
}

func (s *session) send(msg wire.Message) error {
	return s.conduit.Send(msg)
}

func (p *Peer) run(
	ctx context.Context,
	stream io.ReadWriteCloser,
	role string,
	accepted []wire.MessageType,
	fn func(context.Context, *session) error,
) (wire.Stats, error) {
	logger := p.logger.With(zap.String("session", uuid.NewString()), zap.String("role", role))
	if err := p.cfg.Validate(); err != nil {
		stream.Close()
		return wire.Stats{}, fmt.Errorf("recon config: %w", err)
	}
	active := activeSessions.WithLabelValues(role)
	active.Inc()
	defer active.Dec()
	s := &session{
		logger:  logger,
		conduit: wire.NewConduit(stream, stream, wire.WithLogger(logger)),
	}
	s.in = newInbox(s.conduit, p.cfg.OrderQueueSize, accepted...)
	ctx, cancel := context.WithCancel(ctx)
	s.eg.Go(func() error {
		return s.in.receive(ctx)
	})
	logger.Debug("session started")
	err := fn(ctx, s)
	cancel()
	if cerr := stream.Close(); cerr != nil {
		logger.Debug("close stream", zap.Error(cerr))
	}
	if werr := s.eg.Wait(); werr != nil {
		logger.Debug("receive loop ended", zap.Error(werr))
	}
	stats := s.conduit.Stats()
	fields := []zap.Field{
		zap.Uint64("sent", stats.Sent),
		zap.Uint64("received", stats.Received),
		zap.Uint64("order_sent", stats.OrderSent),
		zap.Uint64("order_received", stats.OrderReceived),
	}
	if err != nil {
		sessionOutcomes.WithLabelValues(role, "failed").Inc()
		logger.Error("session failed", append(fields, zap.Error(err))...)
		return stats, err
	}
	sessionOutcomes.WithLabelValues(role, "ok").Inc()
	logger.Info("session complete", append(fields, log.ZShortStringer("root", p.Root()))...)
	return stats, nil
}

// SendBlock announces the block over stream and answers the peer's requests
// until the peer signals completion. The stream is closed on return.
func (p *Peer) SendBlock(ctx context.Context, stream io.ReadWriteCloser) (wire.Stats, error) {
	return p.run(ctx, stream, roleSender, []wire.MessageType{
		wire.MessageTypeGetBlock,
		wire.MessageTypeGetBlockData,
		wire.MessageTypeComplete,
	}, p.sendBlock)
}

// ListenForBlocks receives a block over stream, recovering its content from
// the pool and its order from the peer. The stream is closed on return.
func (p *Peer) ListenForBlocks(ctx context.Context, stream io.ReadWriteCloser) (wire.Stats, error) {
	return p.run(ctx, stream, roleReceiver, []wire.MessageType{
		wire.MessageTypeInventory,
		wire.MessageTypeBlock,
		wire.MessageTypeBlockTxs,
		wire.MessageTypeBlockOrder,
	}, p.listenForBlocks)
}

func (p *Peer) sendBlock(ctx context.Context, s *session) error {
	for _, id := range p.block {
		if !p.pool.Has(id) {
			return fmt.Errorf("%w: %s", ErrMissingPayload, id.ShortString())
		}
	}
	p.tree = ptree.FromLeaves(p.block)
	root := p.tree.Root()
	s.logger.Debug("announcing block",
		log.ZShortStringer("root", root),
		zap.Int("size", len(p.block)))
	if err := s.send(&wire.InventoryMessage{Root: root}); err != nil {
		return err
	}
	req, err := await(ctx, p.clock, s.in, s.in.getBlock, p.cfg.MessageTimeout, wire.MessageTypeGetBlock)
	if err != nil {
		return err
	}
	desc, scheme, err := p.blockDescriptor(int(req.PoolSize))
	if err != nil {
		return err
	}
	if err := s.send(&wire.BlockMessage{Descriptor: desc}); err != nil {
		return err
	}
	pushTree := ptree.FromLeaves(p.block)
	s.eg.Go(func() error {
		p.pushOrder(ctx, s, pushTree)
		return nil
	})
	getData, err := await(ctx, p.clock, s.in, s.in.getData, p.cfg.MessageTimeout, wire.MessageTypeGetBlockData)
	if err != nil {
		return err
	}
	segments, err := missingResponse(p.block, scheme, p.pool, getData.IDs)
	if err != nil {
		return err
	}
	segmentsPerResponse.Observe(float64(len(segments)))
	s.logger.Debug("sending missing transactions",
		zap.Int("requested", len(getData.IDs)),
		zap.Int("segments", len(segments)))
	if err := s.send(&wire.BlockTxsMessage{Segments: segments}); err != nil {
		return err
	}
	complete, err := await(ctx, p.clock, s.in, s.in.complete, p.cfg.CompleteTimeout, wire.MessageTypeComplete)
	if err != nil {
		return err
	}
	if complete.Status != 0 {
		return fmt.Errorf("%w: completion status %d", ErrUnexpectedMessage, complete.Status)
	}
	return nil
}

// pushOrder sends one order descriptor per tree level at the configured
// cadence. Delivery is best effort: any failure ends the push.
func (p *Peer) pushOrder(ctx context.Context, s *session, tree *ptree.Tree) {
	ticker := p.clock.NewTicker(p.cfg.OrderInterval)
	defer ticker.Stop()
	for level := 0; !tree.Folded(); level++ {
		select {
		case <-ctx.Done():
			return
		case <-s.in.completed:
			s.logger.Debug("order push stopped by completion", zap.Int("level", level))
			return
		case <-ticker.Chan():
		}
		tree.Pad()
		desc, err := p.orderDescriptor(tree, level)
		if err != nil {
			s.logger.Warn("failed to build order descriptor", zap.Int("level", level), zap.Error(err))
			return
		}
		if err := s.send(&wire.BlockOrderMessage{Descriptor: desc}); err != nil {
			s.logger.Debug("order push stopped", zap.Int("level", level), zap.Error(err))
			return
		}
		tree.AddLevel()
	}
}

func (p *Peer) listenForBlocks(ctx context.Context, s *session) error {
	inv, err := await(ctx, p.clock, s.in, s.in.inventory, p.cfg.MessageTimeout, wire.MessageTypeInventory)
	if err != nil {
		return err
	}
	s.logger.Debug("block announced", log.ZShortStringer("root", inv.Root))
	if err := s.send(&wire.GetBlockMessage{PoolSize: uint32(p.pool.Len())}); err != nil {
		return err
	}
	blk, err := await(ctx, p.clock, s.in, s.in.block, p.cfg.MessageTimeout, wire.MessageTypeBlock)
	if err != nil {
		return err
	}
	candidate, scheme, missing, err := p.prereconcile(s.logger, blk.Descriptor)
	if err != nil {
		return err
	}
	if err := s.send(&wire.GetBlockDataMessage{IDs: missing}); err != nil {
		return err
	}
	txs, err := await(ctx, p.clock, s.in, s.in.blockTxs, p.cfg.MessageTimeout, wire.MessageTypeBlockTxs)
	if err != nil {
		return err
	}
	block, recovered, err := spliceSegments(candidate, scheme, txs.Segments)
	if err != nil {
		return err
	}
	for _, tx := range recovered {
		p.pool.AddTx(tx)
	}
	s.logger.Debug("content reconciled",
		zap.Int("size", len(block)),
		zap.Int("requested", len(missing)),
		zap.Int("recovered", len(recovered)))
	p.block = block
	p.tree = ptree.FromLeaves(block)
	err = p.reconcileOrder(ctx, s, inv.Root)
	p.block = p.tree.Leaves()
	return err
}

// reconcileOrder consumes one order descriptor per level until the roots
// agree or the tree is folded.
func (p *Peer) reconcileOrder(ctx context.Context, s *session, root types.Hash32) error {
	rounds := 0
	defer func() {
		orderRounds.Observe(float64(rounds))
	}()
	for !p.tree.Folded() {
		p.tree.Pad()
		msg, err := await(ctx, p.clock, s.in, s.in.order, p.cfg.MessageTimeout, wire.MessageTypeBlockOrder)
		if err != nil {
			return err
		}
		rounds++
		pairs, err := p.missingPairs(msg.Descriptor, rounds-1)
		if err != nil {
			return fmt.Errorf("level %d: %w", rounds-1, err)
		}
		missingPairsPerRound.Observe(float64(len(pairs)))
		if err := p.tree.ReconcileOrder(pairs); err != nil {
			return fmt.Errorf("level %d: %w", rounds-1, err)
		}
		s.logger.Debug("order round",
			zap.Int("level", rounds-1),
			zap.Int("width", p.tree.Width()),
			zap.Int("missing_pairs", len(pairs)))
		if len(pairs) == 0 && p.tree.Root() == root {
			return s.send(&wire.CompleteMessage{})
		}
		p.tree.AddLevel()
	}
	if got := p.tree.Root(); got != root {
		return fmt.Errorf("%w: got %s, announced %s", ErrRootMismatch, got.ShortString(), root.ShortString())
	}
	return s.send(&wire.CompleteMessage{})
}
