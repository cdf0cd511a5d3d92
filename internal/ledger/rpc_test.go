package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x1111111111111111111111111111111111111111"

func rpcServer(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestIssueSuccess(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "ledger_issueCredential", method)

		var p issueParams
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, testContract, p.Contract)
		assert.Equal(t, int64(42), p.CertID)
		assert.True(t, strings.HasPrefix(p.CertHash, "0x"))

		return issueResult{TransactionHash: "0xfeed"}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, testContract, 5*time.Second)
	txRef, err := client.Issue(context.Background(), 42, "", strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", txRef)
}

func TestIssueDefaultsToZeroAddress(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		var p issueParams
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, ZeroAddress, p.LearnerAddress)
		return issueResult{TransactionHash: "0x01"}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, testContract, 5*time.Second)
	_, err := client.Issue(context.Background(), 1, "", strings.Repeat("00", 31)+"01")
	require.NoError(t, err)
}

func TestIssueRejected(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: codeCallReverted, Message: "credential already issued"}
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, testContract, 5*time.Second)
	_, err := client.Issue(context.Background(), 7, "", strings.Repeat("ab", 32))
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "already issued")
}

func TestIssueUnavailableOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewRPCClient(srv.URL, testContract, 20*time.Millisecond)
	_, err := client.Issue(context.Background(), 7, "", strings.Repeat("ab", 32))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestIssueUnavailableOnConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewRPCClient(srv.URL, testContract, time.Second)
	_, err := client.Issue(context.Background(), 7, "", strings.Repeat("ab", 32))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGetHashSuccess(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "ledger_getCredentialHash", method)
		return getHashResult{CertHash: "0x" + strings.Repeat("AB", 32)}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, testContract, 5*time.Second)
	hash, err := client.GetHash(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 32), hash)
}

func TestGetHashNotFoundOnZeroHash(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return getHashResult{CertHash: "0x" + strings.Repeat("0", 64)}, nil
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, testContract, 5*time.Second)
	_, err := client.GetHash(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetHashNotFoundOnErrorCode(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: codeCredentialNotFound, Message: "unknown certId"}
	})
	defer srv.Close()

	client := NewRPCClient(srv.URL, testContract, 5*time.Second)
	_, err := client.GetHash(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}
