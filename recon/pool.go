package recon

import (
	"github.com/spacemeshos/gluon/common/types"
)

// TxPool holds transaction payloads by identifier in insertion order. The null
// identifier is always present with an empty payload. TxPool is not safe for
// concurrent use.
type TxPool struct {
	order    []types.Hash32
	payloads map[types.Hash32][]byte
}

// NewTxPool creates a pool holding payloads.
func NewTxPool(payloads ...[]byte) *TxPool {
	p := &TxPool{
		order:    []types.Hash32{types.EmptyHash32},
		payloads: map[types.Hash32][]byte{types.EmptyHash32: {}},
	}
	for _, payload := range payloads {
		p.Add(payload)
	}
	return p
}

// Add inserts payload and returns its identifier.
func (p *TxPool) Add(payload []byte) types.Hash32 {
	tx := types.NewTransaction(payload)
	p.AddTx(tx)
	return tx.ID
}

// AddTx inserts tx unless its identifier is already known.
func (p *TxPool) AddTx(tx types.Transaction) {
	if _, ok := p.payloads[tx.ID]; ok {
		return
	}
	p.order = append(p.order, tx.ID)
	p.payloads[tx.ID] = tx.Payload
}

// Get returns the payload of id.
func (p *TxPool) Get(id types.Hash32) ([]byte, bool) {
	payload, ok := p.payloads[id]
	return payload, ok
}

// Has reports whether id is in the pool.
func (p *TxPool) Has(id types.Hash32) bool {
	_, ok := p.payloads[id]
	return ok
}

// IDs returns identifiers in insertion order, the null identifier excluded.
func (p *TxPool) IDs() []types.Hash32 {
	out := make([]types.Hash32, 0, len(p.order)-1)
	for _, id := range p.order {
		if id != types.EmptyHash32 {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of transactions, the null identifier excluded.
func (p *TxPool) Len() int {
	return len(p.order) - 1
}
