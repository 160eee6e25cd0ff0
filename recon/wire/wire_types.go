// Package wire defines the messages exchanged by reconciling peers and their
// framing: a 1-byte type tag followed by a type specific payload, where
// variable length parts carry a 3-byte big-endian length.
package wire

import (
	"fmt"

	"github.com/spacemeshos/go-scale"

	"github.com/spacemeshos/gluon/common/types"
)

// MessageType specifies the type of a message.
type MessageType byte

const (
	// MessageTypeInventory announces the root of the block being sent.
	MessageTypeInventory MessageType = iota
	// MessageTypeGetBlock requests the block and declares the pool size.
	MessageTypeGetBlock
	// MessageTypeBlock carries the content filter and sketch.
	MessageTypeBlock
	// MessageTypeGetBlockData requests missing transactions by short id.
	MessageTypeGetBlockData
	// MessageTypeBlockTxs carries the segmented missing transactions.
	MessageTypeBlockTxs
	// MessageTypeBlockOrder carries the filter and sketch for one tree level.
	MessageTypeBlockOrder
	// MessageTypeComplete signals that the roots matched.
	MessageTypeComplete
)

var messageTypes = map[MessageType]string{
	MessageTypeInventory:    "inv",
	MessageTypeGetBlock:     "getblock",
	MessageTypeBlock:        "block",
	MessageTypeGetBlockData: "getblockdata",
	MessageTypeBlockTxs:     "blocktxs",
	MessageTypeBlockOrder:   "blockorder",
	MessageTypeComplete:     "complete",
}

func (mtype MessageType) String() string {
	if s, ok := messageTypes[mtype]; ok {
		return s
	}
	return fmt.Sprintf("<unknown %02x>", int(mtype))
}

const (
	// MaxShortIDSize bounds truncated identifiers on the wire.
	MaxShortIDSize = types.Hash32Length
	// MaxIDs bounds the number of identifiers in a request.
	MaxIDs = 1 << 20
	// MaxSegments bounds the number of segments in a response.
	MaxSegments = 1 << 20
	// MaxPayloads bounds the number of payloads in a segment.
	MaxPayloads = 1 << 20
	// MaxPayloadSize bounds a single transaction payload.
	MaxPayloadSize = 1 << 20
)

// Message is a protocol message.
type Message interface {
	Type() MessageType
}

// InventoryMessage announces the tree root of the sender's block.
type InventoryMessage struct {
	Root types.Hash32
}

func (*InventoryMessage) Type() MessageType { return MessageTypeInventory }

// GetBlockMessage asks for the block and declares the receiver pool size.
type GetBlockMessage struct {
	PoolSize uint32
}

func (*GetBlockMessage) Type() MessageType { return MessageTypeGetBlock }

// Descriptor is a serialized membership filter and sketch.
type Descriptor struct {
	Filter []byte
	Sketch []byte
}

// BlockMessage describes the block content.
type BlockMessage struct {
	Descriptor
}

func (*BlockMessage) Type() MessageType { return MessageTypeBlock }

// BlockOrderMessage describes the sibling pairs of one tree level.
type BlockOrderMessage struct {
	Descriptor
}

func (*BlockOrderMessage) Type() MessageType { return MessageTypeBlockOrder }

// GetBlockDataMessage requests transactions by truncated identifier.
type GetBlockDataMessage struct {
	IDs [][]byte
}

func (*GetBlockDataMessage) Type() MessageType { return MessageTypeGetBlockData }

// EncodeScale implements scale codec interface.
func (m *GetBlockDataMessage) EncodeScale(enc *scale.Encoder) (total int, err error) {
	return encodeByteSlices(enc, m.IDs, MaxIDs, MaxShortIDSize)
}

// DecodeScale implements scale codec interface.
func (m *GetBlockDataMessage) DecodeScale(dec *scale.Decoder) (total int, err error) {
	m.IDs, total, err = decodeByteSlices(dec, MaxIDs, MaxShortIDSize)
	return total, err
}

// Segment is a run of transactions that are consecutive in the sender's block.
// Next is the truncated identifier of the block item that follows the run, or
// empty when the run ends the block.
type Segment struct {
	Next     []byte
	Payloads [][]byte
}

// AtEnd reports whether the segment closes the block.
func (s *Segment) AtEnd() bool {
	return len(s.Next) == 0
}

// EncodeScale implements scale codec interface.
func (s *Segment) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeByteSliceWithLimit(enc, s.Next, MaxShortIDSize)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := encodeByteSlices(enc, s.Payloads, MaxPayloads, MaxPayloadSize)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale codec interface.
func (s *Segment) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := scale.DecodeByteSliceWithLimit(dec, MaxShortIDSize)
		if err != nil {
			return total, err
		}
		total += n
		s.Next = field
	}
	{
		field, n, err := decodeByteSlices(dec, MaxPayloads, MaxPayloadSize)
		if err != nil {
			return total, err
		}
		total += n
		s.Payloads = field
	}
	return total, nil
}

// BlockTxsMessage answers GetBlockDataMessage.
type BlockTxsMessage struct {
	Segments []Segment
}

func (*BlockTxsMessage) Type() MessageType { return MessageTypeBlockTxs }

// EncodeScale implements scale codec interface.
func (m *BlockTxsMessage) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeStructSliceWithLimit(enc, m.Segments, MaxSegments)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale codec interface.
func (m *BlockTxsMessage) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := scale.DecodeStructSliceWithLimit[Segment](dec, MaxSegments)
		if err != nil {
			return total, err
		}
		total += n
		m.Segments = field
	}
	return total, nil
}

// CompleteMessage ends the session.
type CompleteMessage struct {
	Status byte
}

func (*CompleteMessage) Type() MessageType { return MessageTypeComplete }

func encodeByteSlices(enc *scale.Encoder, items [][]byte, maxItems, maxSize uint32) (total int, err error) {
	if uint32(len(items)) > maxItems {
		return 0, fmt.Errorf("%d items exceed limit %d", len(items), maxItems)
	}
	{
		n, err := scale.EncodeCompact32(enc, uint32(len(items)))
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, item := range items {
		n, err := scale.EncodeByteSliceWithLimit(enc, item, maxSize)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func decodeByteSlices(dec *scale.Decoder, maxItems, maxSize uint32) (items [][]byte, total int, err error) {
	count, n, err := scale.DecodeCompact32(dec)
	if err != nil {
		return nil, total, err
	}
	total += n
	if count > maxItems {
		return nil, total, fmt.Errorf("%d items exceed limit %d", count, maxItems)
	}
	if count == 0 {
		return nil, total, nil
	}
	items = make([][]byte, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		item, n, err := scale.DecodeByteSliceWithLimit(dec, maxSize)
		if err != nil {
			return nil, total, err
		}
		total += n
		items = append(items, item)
	}
	return items, total, nil
}
