package types

// Transaction is an opaque payload together with its identifier.
type Transaction struct {
	ID      Hash32
	Payload []byte
}

// NewTransaction computes the identifier of payload.
func NewTransaction(payload []byte) Transaction {
	return Transaction{ID: CalcTxHash(payload), Payload: payload}
}

// TransactionIDs returns identifiers of txs in order.
func TransactionIDs(txs []Transaction) []Hash32 {
	ids := make([]Hash32, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}
