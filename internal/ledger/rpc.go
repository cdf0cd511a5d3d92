package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// JSON-RPC error codes returned by the ledger node.
const (
	codeCredentialNotFound = -32001
	codeCallReverted       = -32002
)

// RPCClient is the JSON-RPC client for the credential ledger node.
type RPCClient struct {
	url      string
	contract string
	http     *http.Client
	nextID   atomic.Int64
}

// NewRPCClient creates a ledger client against the given node URL and
// contract address. Every call carries the timeout; expiry surfaces as
// ErrUnavailable.
func NewRPCClient(url, contract string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		url:      url,
		contract: contract,
		http:     &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type issueParams struct {
	Contract       string `json:"contract"`
	CertID         int64  `json:"certId"`
	LearnerAddress string `json:"learnerAddress"`
	CertHash       string `json:"certHash"`
}

type issueResult struct {
	TransactionHash string `json:"transactionHash"`
}

type getHashParams struct {
	Contract string `json:"contract"`
	CertID   int64  `json:"certId"`
}

type getHashResult struct {
	CertHash string `json:"certHash"`
}

// Issue submits the credential hash to the ledger contract and waits for
// confirmation. The node's own consensus dictates how long that takes.
func (c *RPCClient) Issue(ctx context.Context, certID int64, learnerAddress, certHash string) (string, error) {
	if learnerAddress == "" {
		learnerAddress = ZeroAddress
	}

	var result issueResult
	err := c.call(ctx, "ledger_issueCredential", issueParams{
		Contract:       c.contract,
		CertID:         certID,
		LearnerAddress: learnerAddress,
		CertHash:       hexPrefixed(certHash),
	}, &result)
	if err != nil {
		return "", err
	}

	if result.TransactionHash == "" {
		return "", fmt.Errorf("%w: node returned empty transaction hash", ErrRejected)
	}

	return result.TransactionHash, nil
}

// GetHash looks up the hash recorded for the certificate id.
func (c *RPCClient) GetHash(ctx context.Context, certID int64) (string, error) {
	var result getHashResult
	err := c.call(ctx, "ledger_getCredentialHash", getHashParams{
		Contract: c.contract,
		CertID:   certID,
	}, &result)
	if err != nil {
		return "", err
	}

	hash := strings.TrimPrefix(strings.ToLower(result.CertHash), "0x")

	// The contract returns bytes32(0) for ids it has never seen.
	if hash == "" || hash == strings.Repeat("0", 64) {
		return "", fmt.Errorf("cert_id %d: %w", certID, ErrNotFound)
	}

	return hash, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: node returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}

	if rpcResp.Error != nil {
		if rpcResp.Error.Code == codeCredentialNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, rpcResp.Error.Message)
		}
		return fmt.Errorf("%w: %s (code %d)", ErrRejected, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("%w: failed to decode result: %v", ErrUnavailable, err)
	}

	return nil
}

func hexPrefixed(hash string) string {
	if strings.HasPrefix(hash, "0x") {
		return hash
	}
	return "0x" + hash
}
