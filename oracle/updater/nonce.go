package updater

// NonceSequencer hands out the nonces of one sponsor wallet within one cycle.
// It only moves forward, and only after a transaction was accepted.
type NonceSequencer struct {
	next uint64
}

func NewNonceSequencer(transactionCount uint64) *NonceSequencer {
	return &NonceSequencer{next: transactionCount}
}

func (n *NonceSequencer) Nonce() uint64 {
	return n.next
}

// Advance is called after a successful submission.
func (n *NonceSequencer) Advance() {
	n.next++
}
