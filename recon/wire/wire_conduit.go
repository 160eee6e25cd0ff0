package wire

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spacemeshos/gluon/codec"
	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/common/util"
)

var (
	// ErrFrameTooLarge is returned when a payload does not fit the 3-byte length.
	ErrFrameTooLarge = errors.New("wire: frame too large")
	// ErrUnknownMessage is returned for an unknown type tag.
	ErrUnknownMessage = errors.New("wire: unknown message type")
)

// Stats counts framed bytes, type tags and length prefixes included.
type Stats struct {
	Sent          uint64
	Received      uint64
	OrderSent     uint64
	OrderReceived uint64
}

// Conduit reads and writes framed messages. Send may be called from several
// goroutines, NextMessage from one.
type Conduit struct {
	logger *zap.Logger
	r      io.Reader
	w      io.Writer
	wmu    sync.Mutex

	sent, received, orderSent, orderReceived atomic.Uint64
}

// ConduitOpt configures a Conduit.
type ConduitOpt func(*Conduit)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ConduitOpt {
	return func(c *Conduit) {
		c.logger = logger
	}
}

// NewConduit reads messages from r and writes them to w.
func NewConduit(r io.Reader, w io.Writer, opts ...ConduitOpt) *Conduit {
	c := &Conduit{
		logger: zap.NewNop(),
		r:      r,
		w:      w,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns byte counters.
func (c *Conduit) Stats() Stats {
	return Stats{
		Sent:          c.sent.Load(),
		Received:      c.received.Load(),
		OrderSent:     c.orderSent.Load(),
		OrderReceived: c.orderReceived.Load(),
	}
}

func appendLength(buf []byte, n int) ([]byte, error) {
	if n > util.MaxUint24 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	var b [3]byte
	util.PutUint24(b[:], uint32(n))
	return append(buf, b[:]...), nil
}

func appendBlob(buf, blob []byte) ([]byte, error) {
	buf, err := appendLength(buf, len(blob))
	if err != nil {
		return nil, err
	}
	return append(buf, blob...), nil
}

// frame serializes m including its type tag.
func frame(m Message) ([]byte, error) {
	buf := []byte{byte(m.Type())}
	switch m := m.(type) {
	case *InventoryMessage:
		return append(buf, m.Root[:]...), nil
	case *GetBlockMessage:
		if m.PoolSize > util.MaxUint24 {
			return nil, fmt.Errorf("%w: pool size %d", ErrFrameTooLarge, m.PoolSize)
		}
		var b [3]byte
		util.PutUint24(b[:], m.PoolSize)
		return append(buf, b[:]...), nil
	case *BlockMessage:
		return appendDescriptor(buf, &m.Descriptor)
	case *BlockOrderMessage:
		return appendDescriptor(buf, &m.Descriptor)
	case *GetBlockDataMessage:
		return appendEncoded(buf, m)
	case *BlockTxsMessage:
		return appendEncoded(buf, m)
	case *CompleteMessage:
		return append(buf, m.Status), nil
	default:
		panic(fmt.Sprintf("BUG: unexpected message %T", m))
	}
}

func appendDescriptor(buf []byte, d *Descriptor) ([]byte, error) {
	buf, err := appendBlob(buf, d.Filter)
	if err != nil {
		return nil, err
	}
	return appendBlob(buf, d.Sketch)
}

func appendEncoded(buf []byte, m codec.Encodable) ([]byte, error) {
	data, err := codec.Encode(m)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return appendBlob(buf, data)
}

// Send writes a single message.
func (c *Conduit) Send(m Message) error {
	buf, err := frame(m)
	if err != nil {
		return fmt.Errorf("%s: %w", m.Type(), err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(buf); err != nil {
		return fmt.Errorf("send %s: %w", m.Type(), err)
	}
	c.count(m.Type(), len(buf), &c.sent, &c.orderSent, directionSent)
	c.logger.Debug("sent message", zap.Stringer("type", m.Type()), zap.Int("bytes", len(buf)))
	return nil
}

func (c *Conduit) count(mtype MessageType, n int, total, order *atomic.Uint64, direction string) {
	total.Add(uint64(n))
	if mtype == MessageTypeBlockOrder {
		order.Add(uint64(n))
	}
	messageBytes.WithLabelValues(direction, mtype.String()).Add(float64(n))
}

type frameReader struct {
	r io.Reader
	n int
}

func (fr *frameReader) full(buf []byte) error {
	n, err := io.ReadFull(fr.r, buf)
	fr.n += n
	if errors.Is(err, io.EOF) {
		// EOF after the type tag is always premature
		return io.ErrUnexpectedEOF
	}
	return err
}

func (fr *frameReader) blob() ([]byte, error) {
	var l [3]byte
	if err := fr.full(l[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, util.Uint24(l[:]))
	if err := fr.full(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (fr *frameReader) descriptor() (Descriptor, error) {
	filter, err := fr.blob()
	if err != nil {
		return Descriptor{}, fmt.Errorf("filter: %w", err)
	}
	sketch, err := fr.blob()
	if err != nil {
		return Descriptor{}, fmt.Errorf("sketch: %w", err)
	}
	return Descriptor{Filter: filter, Sketch: sketch}, nil
}

func (fr *frameReader) decoded(m codec.Decodable) error {
	data, err := fr.blob()
	if err != nil {
		return err
	}
	return codec.Decode(data, m)
}

// NextMessage blocks until a message arrives. It returns nil, nil when the
// stream ends cleanly between messages.
func (c *Conduit) NextMessage() (Message, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, nil
	}
	fr := &frameReader{r: c.r, n: 1}
	mtype := MessageType(b[0])
	var (
		m   Message
		err error
	)
	switch mtype {
	case MessageTypeInventory:
		var root types.Hash32
		err = fr.full(root[:])
		m = &InventoryMessage{Root: root}
	case MessageTypeGetBlock:
		var size [3]byte
		err = fr.full(size[:])
		m = &GetBlockMessage{PoolSize: util.Uint24(size[:])}
	case MessageTypeBlock:
		var d Descriptor
		d, err = fr.descriptor()
		m = &BlockMessage{Descriptor: d}
	case MessageTypeBlockOrder:
		var d Descriptor
		d, err = fr.descriptor()
		m = &BlockOrderMessage{Descriptor: d}
	case MessageTypeGetBlockData:
		var msg GetBlockDataMessage
		err = fr.decoded(&msg)
		m = &msg
	case MessageTypeBlockTxs:
		var msg BlockTxsMessage
		err = fr.decoded(&msg)
		m = &msg
	case MessageTypeComplete:
		var status [1]byte
		err = fr.full(status[:])
		m = &CompleteMessage{Status: status[0]}
	default:
		return nil, fmt.Errorf("%w: %02x", ErrUnknownMessage, b[0])
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mtype, err)
	}
	c.count(mtype, fr.n, &c.received, &c.orderReceived, directionReceived)
	c.logger.Debug("received message", zap.Stringer("type", mtype), zap.Int("bytes", fr.n))
	return m, nil
}
