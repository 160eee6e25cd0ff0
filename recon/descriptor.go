package recon

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/recon/encoding"
	"github.com/spacemeshos/gluon/recon/membership"
	"github.com/spacemeshos/gluon/recon/params"
	"github.com/spacemeshos/gluon/recon/ptree"
	"github.com/spacemeshos/gluon/recon/siblt"
	"github.com/spacemeshos/gluon/recon/wire"
)

func pairBytes(p ptree.Pair) []byte {
	out := make([]byte, 0, 2*types.Hash32Length)
	out = append(out, p[0][:]...)
	return append(out, p[1][:]...)
}

func (p *Peer) newSketch(cells, keySize int) *siblt.Sketch {
	return siblt.New(cells, keySize, p.cfg.ChecksumSize, p.cfg.NumHashes)
}

// contentParams sizes the content filter and sketch for a block of blockSize
// items reconciled against a pool of poolSize items.
func (p *Peer) contentParams(blockSize, poolSize int) (errorRate float64, cells int) {
	cellCost := params.CellCost(p.cfg.IDPrefixSize)
	if p.cfg.Sizing == SizingGraphene {
		errorRate, cells = params.GrapheneParams(blockSize, poolSize, cellCost/8)
		return errorRate, max(cells, p.cfg.MinSketchCells)
	}
	excess := p.cfg.EstExcess
	if excess == 0 {
		excess = params.EstimateExcess(blockSize, poolSize, p.cfg.EstMissing)
	}
	errorRate, raw := params.OptimumParams(blockSize, poolSize, p.cfg.EstMissing, excess, cellCost)
	return errorRate, params.CellCount(raw, p.cfg.CellMultiplier, p.cfg.MinSketchCells)
}

// blockDescriptor builds the content filter over full identifiers and the
// sketch over their prefixes.
func (p *Peer) blockDescriptor(poolSize int) (wire.Descriptor, *encoding.Truncated, error) {
	scheme := encoding.NewTruncated(p.block, p.cfg.IDPrefixSize)
	errorRate, cells := p.contentParams(len(p.block), poolSize)
	filter := membership.New(len(p.block), errorRate)
	sketch := p.newSketch(cells, scheme.Size())
	for _, id := range p.block {
		filter.Add(id[:])
		if err := sketch.Insert(scheme.Encode(id)); err != nil {
			return wire.Descriptor{}, nil, err
		}
	}
	p.logger.Debug("block descriptor",
		zap.Int("block_size", len(p.block)),
		zap.Int("pool_size", poolSize),
		zap.Float64("error_rate", errorRate),
		zap.Int("cells", cells),
		zap.Int("prefix_collisions", scheme.Collisions()))
	desc, err := marshalDescriptor(filter, sketch)
	return desc, scheme, err
}

// pairScheme keys the sibling pairs of a frontier holding values. halfSize is
// the key length of one pair half.
func (p *Peer) pairScheme(values []types.Hash32, level, halfSize int) (*encoding.Double, error) {
	if level == 0 && p.cfg.PairEncoding == PairEncodingSortedIndex {
		// after content reconciliation both level 0 frontiers hold the block
		index, err := encoding.NewSortedIndex(values, halfSize)
		if err != nil {
			return nil, err
		}
		return encoding.NewDouble(index), nil
	}
	return encoding.NewDouble(encoding.NewTruncated(values, halfSize)), nil
}

// orderDescriptor builds the filter and sketch over the sibling pairs of the
// padded frontier at level.
func (p *Peer) orderDescriptor(tree *ptree.Tree, level int) (wire.Descriptor, error) {
	half := p.cfg.PairPrefixSize
	switch {
	case level == 0 && p.cfg.PairEncoding == PairEncodingSortedIndex:
		half = encoding.IndexWidth(tree.Width())
	case half == 0:
		half = params.PrefixSize(tree.Width(), pairPrefixMargin, minPairPrefix, maxPairPrefix)
	}
	scheme, err := p.pairScheme(tree.Values(), level, half)
	if err != nil {
		return wire.Descriptor{}, err
	}
	pairs := tree.Pairs()
	errorRate, raw := params.OptimumParams(len(pairs), len(pairs),
		p.cfg.EstPairMissing, p.cfg.EstPairMissing, params.CellCost(scheme.Size()))
	cells := params.CellCount(raw, p.cfg.CellMultiplier, p.cfg.MinSketchCells)
	filter := membership.New(len(pairs), errorRate)
	sketch := p.newSketch(cells, scheme.Size())
	for _, pair := range pairs {
		filter.Add(pairBytes(pair))
		if err := sketch.Insert(scheme.Encode(pair[0], pair[1])); err != nil {
			return wire.Descriptor{}, err
		}
	}
	return marshalDescriptor(filter, sketch)
}

func marshalDescriptor(filter *membership.Filter, sketch *siblt.Sketch) (wire.Descriptor, error) {
	f, err := filter.MarshalBinary()
	if err != nil {
		return wire.Descriptor{}, err
	}
	s, err := sketch.MarshalBinary()
	if err != nil {
		return wire.Descriptor{}, err
	}
	return wire.Descriptor{Filter: f, Sketch: s}, nil
}

func unmarshalDescriptor(desc wire.Descriptor) (*membership.Filter, *siblt.Sketch, error) {
	filter, err := membership.Unmarshal(desc.Filter)
	if err != nil {
		return nil, nil, err
	}
	sketch, err := siblt.Unmarshal(desc.Sketch)
	if err != nil {
		return nil, nil, err
	}
	return filter, sketch, nil
}

// difference subtracts a sketch of local keys from the peer's sketch and
// peels the result. left holds keys only the peer has.
func difference(peer *siblt.Sketch, local [][]byte, phase string) (left, right [][]byte, err error) {
	mine := siblt.New(peer.NumCells(), peer.KeySize(), peer.ChecksumSize(), peer.NumHashes())
	if err := mine.Encode(local); err != nil {
		return nil, nil, err
	}
	if err := peer.Subtract(mine); err != nil {
		return nil, nil, err
	}
	status, left, right := peer.Decode()
	decodeOutcomes.WithLabelValues(phase, status.String()).Inc()
	if status != siblt.Success {
		return nil, nil, fmt.Errorf("%w: %s phase, %d cells, %d+%d keys peeled",
			ErrDecodeFailure, phase, peer.NumCells(), len(left), len(right))
	}
	return left, right, nil
}

// prereconcile selects the pool transactions that pass the peer's filter and
// corrects the selection with the difference sketch. It returns the candidate
// block, the scheme resolving short identifiers against it and the short
// identifiers to request from the peer.
func (p *Peer) prereconcile(
	logger *zap.Logger,
	desc wire.Descriptor,
) ([]types.Hash32, *encoding.Truncated, [][]byte, error) {
	filter, sketch, err := unmarshalDescriptor(desc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("block descriptor: %w", err)
	}
	if sketch.KeySize() > types.Hash32Length {
		return nil, nil, nil, fmt.Errorf("%w: content key size %d", siblt.ErrKeySize, sketch.KeySize())
	}
	var candidate []types.Hash32
	for _, id := range p.pool.IDs() {
		if filter.Contains(id[:]) {
			candidate = append(candidate, id)
		}
	}
	scheme := encoding.NewTruncated(candidate, sketch.KeySize())
	keys := make([][]byte, len(candidate))
	for i, id := range candidate {
		keys[i] = scheme.Encode(id)
	}
	missing, excess, err := difference(sketch, keys, phaseContent)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(excess) != 0 {
		drop := make(map[types.Hash32]struct{}, len(excess))
		for _, key := range excess {
			id, err := scheme.Decode(key)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("excess id: %w", err)
			}
			drop[id] = struct{}{}
		}
		kept := candidate[:0]
		for _, id := range candidate {
			if _, ok := drop[id]; !ok {
				kept = append(kept, id)
			}
		}
		candidate = kept
	}
	logger.Debug("content difference decoded",
		zap.Int("passed_filter", len(keys)),
		zap.Int("missing", len(missing)),
		zap.Int("excess", len(excess)),
		zap.Int("cells", sketch.NumCells()))
	return candidate, scheme, missing, nil
}

// missingPairs returns the sibling pairs of the peer's level that the local
// frontier lacks.
func (p *Peer) missingPairs(desc wire.Descriptor, level int) ([]ptree.Pair, error) {
	filter, sketch, err := unmarshalDescriptor(desc)
	if err != nil {
		return nil, fmt.Errorf("order descriptor: %w", err)
	}
	if sketch.KeySize()%2 != 0 || sketch.KeySize() > 2*types.Hash32Length {
		return nil, fmt.Errorf("%w: pair key size %d", siblt.ErrKeySize, sketch.KeySize())
	}
	scheme, err := p.pairScheme(p.tree.Values(), level, sketch.KeySize()/2)
	if err != nil {
		return nil, fmt.Errorf("order descriptor: %w", err)
	}
	var keys [][]byte
	for _, pair := range p.tree.Pairs() {
		if filter.Contains(pairBytes(pair)) {
			keys = append(keys, scheme.Encode(pair[0], pair[1]))
		}
	}
	left, _, err := difference(sketch, keys, phaseOrder)
	if err != nil {
		return nil, err
	}
	out := make([]ptree.Pair, 0, len(left))
	for _, key := range left {
		a, b, err := scheme.Decode(key)
		if err != nil {
			return nil, fmt.Errorf("missing pair: %w", err)
		}
		out = append(out, ptree.Pair{a, b})
	}
	return out, nil
}
