package recon

import (
	"fmt"
	"slices"

	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/recon/encoding"
	"github.com/spacemeshos/gluon/recon/wire"
)

// missingResponse groups the requested transactions into runs that are
// consecutive in block. Each run is labeled with the short identifier of the
// block item following it, or left unlabeled when it ends the block.
func missingResponse(
	block []types.Hash32,
	scheme encoding.IDScheme,
	pool *TxPool,
	requested [][]byte,
) ([]wire.Segment, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	position := make(map[types.Hash32]int, len(block))
	for i, id := range block {
		position[id] = i
	}
	seen := make(map[int]struct{}, len(requested))
	positions := make([]int, 0, len(requested))
	for _, key := range requested {
		id, err := scheme.Decode(key)
		if err != nil {
			return nil, fmt.Errorf("requested id: %w", err)
		}
		pos, ok := position[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", encoding.ErrUnknownIdentifier, id.ShortString())
		}
		if _, ok := seen[pos]; ok {
			continue
		}
		seen[pos] = struct{}{}
		positions = append(positions, pos)
	}
	slices.Sort(positions)

	var segments []wire.Segment
	var cur wire.Segment
	for i, pos := range positions {
		payload, ok := pool.Get(block[pos])
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingPayload, block[pos].ShortString())
		}
		cur.Payloads = append(cur.Payloads, payload)
		if i+1 < len(positions) && positions[i+1] == pos+1 {
			continue
		}
		if pos+1 < len(block) {
			cur.Next = scheme.Encode(block[pos+1])
		}
		segments = append(segments, cur)
		cur = wire.Segment{}
	}
	return segments, nil
}

// spliceSegments inserts the transactions of each segment into candidate
// right before the item its label resolves to, or at the end for unlabeled
// segments. It returns the new candidate and the recovered transactions.
func spliceSegments(
	candidate []types.Hash32,
	scheme encoding.IDScheme,
	segments []wire.Segment,
) ([]types.Hash32, []types.Transaction, error) {
	var (
		txs    []types.Transaction
		tail   []types.Hash32
		before = make(map[types.Hash32][]types.Hash32)
	)
	for _, seg := range segments {
		ids := make([]types.Hash32, len(seg.Payloads))
		for i, payload := range seg.Payloads {
			tx := types.NewTransaction(payload)
			txs = append(txs, tx)
			ids[i] = tx.ID
		}
		if seg.AtEnd() {
			tail = append(tail, ids...)
			continue
		}
		next, err := scheme.Decode(seg.Next)
		if err != nil {
			return nil, nil, fmt.Errorf("segment label: %w", err)
		}
		before[next] = append(before[next], ids...)
	}
	out := make([]types.Hash32, 0, len(candidate)+len(txs))
	for _, id := range candidate {
		if ids, ok := before[id]; ok {
			out = append(out, ids...)
			delete(before, id)
		}
		out = append(out, id)
	}
	for id := range before {
		return nil, nil, fmt.Errorf("%w: segment label %s not in candidate block",
			encoding.ErrUnknownIdentifier, id.ShortString())
	}
	return append(out, tail...), txs, nil
}
