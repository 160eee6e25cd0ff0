package recon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/spacemeshos/gluon/recon/wire"
)

// inbox is fed by the receive loop. Every message kind has its own channel;
// order descriptors are queued, all other kinds are accepted once.
type inbox struct {
	conduit  *wire.Conduit
	accepted map[wire.MessageType]bool

	inventory chan *wire.InventoryMessage
	getBlock  chan *wire.GetBlockMessage
	block     chan *wire.BlockMessage
	getData   chan *wire.GetBlockDataMessage
	blockTxs  chan *wire.BlockTxsMessage
	order     chan *wire.BlockOrderMessage
	complete  chan *wire.CompleteMessage

	// completed is closed when the completion signal arrives.
	completed chan struct{}
	// closed is closed when the receive loop exits; err is set before that.
	closed chan struct{}
	err    error
	once   sync.Once
}

func newInbox(conduit *wire.Conduit, orderQueueSize int, accepted ...wire.MessageType) *inbox {
	in := &inbox{
		conduit:   conduit,
		accepted:  make(map[wire.MessageType]bool, len(accepted)),
		inventory: make(chan *wire.InventoryMessage, 1),
		getBlock:  make(chan *wire.GetBlockMessage, 1),
		block:     make(chan *wire.BlockMessage, 1),
		getData:   make(chan *wire.GetBlockDataMessage, 1),
		blockTxs:  make(chan *wire.BlockTxsMessage, 1),
		order:     make(chan *wire.BlockOrderMessage, orderQueueSize),
		complete:  make(chan *wire.CompleteMessage, 1),
		completed: make(chan struct{}),
		closed:    make(chan struct{}),
	}
	for _, mtype := range accepted {
		in.accepted[mtype] = true
	}
	return in
}

func (in *inbox) stop(err error) {
	in.once.Do(func() {
		in.err = err
		close(in.closed)
	})
}

// receive reads messages until the stream ends, fails or ctx is canceled.
func (in *inbox) receive(ctx context.Context) error {
	err := in.loop(ctx)
	in.stop(err)
	return err
}

func (in *inbox) loop(ctx context.Context) error {
	seen := make(map[wire.MessageType]bool)
	for {
		msg, err := in.conduit.NextMessage()
		switch {
		case err != nil:
			return err
		case msg == nil:
			return nil
		}
		mtype := msg.Type()
		if !in.accepted[mtype] {
			return fmt.Errorf("%w: %s", ErrUnexpectedMessage, mtype)
		}
		if mtype != wire.MessageTypeBlockOrder {
			if seen[mtype] {
				return fmt.Errorf("%w: duplicate %s", ErrUnexpectedMessage, mtype)
			}
			seen[mtype] = true
		}
		switch m := msg.(type) {
		case *wire.InventoryMessage:
			in.inventory <- m
		case *wire.GetBlockMessage:
			in.getBlock <- m
		case *wire.BlockMessage:
			in.block <- m
		case *wire.GetBlockDataMessage:
			in.getData <- m
		case *wire.BlockTxsMessage:
			in.blockTxs <- m
		case *wire.CompleteMessage:
			in.complete <- m
			close(in.completed)
		case *wire.BlockOrderMessage:
			select {
			case in.order <- m:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// await waits for the next message on ch. A message that is already queued
// wins over the end of the stream.
func await[T wire.Message](
	ctx context.Context,
	clock clockwork.Clock,
	in *inbox,
	ch <-chan T,
	timeout time.Duration,
	what wire.MessageType,
) (T, error) {
	var zero T
	timer := clock.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-ch:
		return m, nil
	case <-in.closed:
		select {
		case m := <-ch:
			return m, nil
		default:
		}
		if in.err != nil {
			return zero, fmt.Errorf("waiting for %s: %w", what, in.err)
		}
		return zero, fmt.Errorf("%w: waiting for %s", ErrConnectionClosed, what)
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.Chan():
		return zero, fmt.Errorf("%w: no %s within %s", ErrProtocolTimeout, what, timeout)
	}
}
