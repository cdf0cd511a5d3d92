// Package ledger talks to the external credential ledger: the tamper-evident
// service of record that stores a certificate's content hash outside this
// system's control. Each call is a single best-effort remote invocation;
// retry policy belongs to the caller.
package ledger

import (
	"context"
	"errors"
)

// ZeroAddress is used when no learner wallet address was supplied.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var (
	// ErrUnavailable indicates a transport failure or timeout reaching the
	// ledger node. The write may or may not have landed.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrRejected indicates the remote contract refused the call, including
	// a duplicate issuance for an id that is already on the ledger.
	ErrRejected = errors.New("ledger rejected the call")

	// ErrNotFound indicates no hash is recorded on the ledger for the id.
	ErrNotFound = errors.New("credential not found on ledger")
)

// Client issues the two remote operations against the credential ledger.
type Client interface {
	// Issue submits the certificate hash to the ledger and blocks until the
	// ledger confirms the write. Returns the transaction reference.
	Issue(ctx context.Context, certID int64, learnerAddress, certHash string) (string, error)

	// GetHash returns the hash recorded on the ledger for the certificate
	// id, as bare lowercase hex without the 0x prefix.
	GetHash(ctx context.Context, certID int64) (string, error)
}
