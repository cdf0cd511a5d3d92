package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillchain/certserver/internal/api"
	"github.com/skillchain/certserver/internal/config"
	"github.com/skillchain/certserver/internal/credential"
	"github.com/skillchain/certserver/internal/db"
	"github.com/skillchain/certserver/internal/db/repository"
	"github.com/skillchain/certserver/internal/ledger"
	"github.com/skillchain/certserver/internal/policy"
)

const testAdminToken = "router-test-admin-token"

// ledgerNode is an in-memory JSON-RPC stub standing in for the ledger node.
type ledgerNode struct {
	mu     sync.Mutex
	hashes map[int64]string
	txSeq  int
}

func newLedgerNode() *ledgerNode {
	return &ledgerNode{hashes: make(map[int64]string)}
}

func (n *ledgerNode) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params struct {
			CertID   int64  `json:"certId"`
			CertHash string `json:"certHash"`
		} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var result interface{}
	switch req.Method {
	case "ledger_issueCredential":
		n.txSeq++
		n.hashes[req.Params.CertID] = strings.TrimPrefix(req.Params.CertHash, "0x")
		result = map[string]string{"transactionHash": fmt.Sprintf("0xrst%04d", n.txSeq)}
	case "ledger_getCredentialHash":
		hash, ok := n.hashes[req.Params.CertID]
		if !ok {
			hash = strings.Repeat("0", 64)
		}
		result = map[string]string{"certHash": "0x" + hash}
	default:
		http.Error(w, "unknown method", http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	})
}

func newTestServer(t *testing.T) *api.Server {
	t.Helper()

	node := httptest.NewServer(http.HandlerFunc(newLedgerNode().handler))
	t.Cleanup(node.Close)

	database, err := db.New(config.DatabaseConfig{
		Driver: db.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "router.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	cfg := &config.Config{}
	cfg.Server.ListenAddr = ":0"
	cfg.Server.VerifyBaseURL = "https://certs.example.com"
	cfg.Ledger.RPCURL = node.URL
	cfg.Ledger.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	cfg.Policy.MaxCertsPerDay = 100
	cfg.Policy.MinNSQFLevel = 1
	cfg.Policy.MaxNSQFLevel = 10
	cfg.Admin.Token = testAdminToken

	certRepo := repository.NewCertificateRepository(database)
	issuerRepo := repository.NewIssuerRepository(database)
	auditRepo := repository.NewAuditRepository(database)

	ledgerClient := ledger.NewRPCClient(cfg.Ledger.RPCURL, cfg.Ledger.ContractAddress, cfg.GetLedgerTimeout())
	service := credential.NewService(certRepo, ledgerClient, nil)
	validator := policy.NewValidator(cfg, certRepo)

	return api.NewServer(cfg, service, issuerRepo, auditRepo, validator)
}

func doJSON(t *testing.T, server *api.Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func registerIssuer(t *testing.T, server *api.Server) string {
	t.Helper()

	w := doJSON(t, server, http.MethodPost, "/v1/admin/issuers",
		map[string]interface{}{"name": "Router Test Institute"},
		map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.APIKey)
	return resp.APIKey
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestIssueAndVerifyOverHTTP(t *testing.T) {
	server := newTestServer(t)
	apiKey := registerIssuer(t, server)

	issueBody := map[string]interface{}{
		"learner_name":    "Asha Rao",
		"course_name":     "Cloud Fundamentals",
		"nsqf_level":      4,
		"completion_date": "2024-03-15T00:00:00Z",
		"marks":           92,
	}

	w := doJSON(t, server, http.MethodPost, "/v1/certs/issue", issueBody,
		map[string]string{"Authorization": "Bearer " + apiKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var issued struct {
		Status      string `json:"status"`
		Certificate struct {
			CertID          int64   `json:"cert_id"`
			CertHash        string  `json:"cert_hash"`
			TransactionHash *string `json:"transaction_hash"`
		} `json:"certificate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.Equal(t, "issued", issued.Status)
	assert.Equal(t, int64(1), issued.Certificate.CertID)
	assert.Len(t, issued.Certificate.CertHash, 64)
	require.NotNil(t, issued.Certificate.TransactionHash)

	// Public verification requires no credentials
	w = doJSON(t, server, http.MethodGet, "/v1/certs/1/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var verification struct {
		Status   string `json:"status"`
		Verified bool   `json:"verified"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verification))
	assert.Equal(t, "verified", verification.Status)
	assert.True(t, verification.Verified)
}

func TestIssueRequiresAPIKey(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/v1/certs/issue",
		map[string]interface{}{"learner_name": "Asha Rao"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueRejectsPolicyViolation(t *testing.T) {
	server := newTestServer(t)
	apiKey := registerIssuer(t, server)

	w := doJSON(t, server, http.MethodPost, "/v1/certs/issue",
		map[string]interface{}{
			"learner_name":    "Asha Rao",
			"course_name":     "Cloud Fundamentals",
			"nsqf_level":      42,
			"completion_date": "2024-03-15T00:00:00Z",
		},
		map[string]string{"Authorization": "Bearer " + apiKey})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "policy_violation")
}

func TestVerifyUnknownCertificate(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/v1/certs/999/verify", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCertIDPathAcceptsDisplayForm(t *testing.T) {
	server := newTestServer(t)
	apiKey := registerIssuer(t, server)

	w := doJSON(t, server, http.MethodPost, "/v1/certs/issue",
		map[string]interface{}{
			"learner_name":    "Ravi Kumar",
			"course_name":     "Full Stack Development",
			"nsqf_level":      5,
			"completion_date": "2023-09-15T00:00:00Z",
		},
		map[string]string{"Authorization": "Bearer " + apiKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, server, http.MethodGet, "/v1/certs/CERT-1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQRCodeEndpoint(t *testing.T) {
	server := newTestServer(t)
	apiKey := registerIssuer(t, server)

	w := doJSON(t, server, http.MethodPost, "/v1/certs/issue",
		map[string]interface{}{
			"learner_name":    "Asha Rao",
			"course_name":     "Cloud Fundamentals",
			"nsqf_level":      4,
			"completion_date": "2024-03-15T00:00:00Z",
		},
		map[string]string{"Authorization": "Bearer " + apiKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, server, http.MethodGet, "/v1/certs/1/qr", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	// PNG magic bytes
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = doJSON(t, server, http.MethodGet, "/v1/certs/999/qr", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	server := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/v1/admin/issuers",
		map[string]interface{}{"name": "No Token Institute"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, server, http.MethodGet, "/v1/admin/audit", nil,
		map[string]string{"X-Admin-Token": "wrong-token"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDigiLockerExport(t *testing.T) {
	server := newTestServer(t)
	apiKey := registerIssuer(t, server)

	w := doJSON(t, server, http.MethodPost, "/v1/certs/issue",
		map[string]interface{}{
			"learner_name":    "Asha Rao",
			"course_name":     "Cloud Fundamentals",
			"nsqf_level":      4,
			"completion_date": "2024-03-15T00:00:00Z",
		},
		map[string]string{"Authorization": "Bearer " + apiKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Export requires issuer credentials
	w = doJSON(t, server, http.MethodGet, "/v1/certs/1/digilocker", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, server, http.MethodGet, "/v1/certs/1/digilocker", nil,
		map[string]string{"Authorization": "Bearer " + apiKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "https://certs.example.com/verify?certId=1")
}
