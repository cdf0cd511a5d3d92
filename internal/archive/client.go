// Package archive uploads certificate metadata blobs to a content-addressed
// off-chain store (an IPFS node). Archiving is best effort: a failure never
// aborts issuance, it only leaves the record without an archive id.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrFailed wraps every archive upload failure so callers can treat the
// whole class as non-fatal.
var ErrFailed = errors.New("archive upload failed")

// Client stores a blob and returns its content identifier.
type Client interface {
	Store(ctx context.Context, blob []byte) (string, error)
}

// IPFSClient stores blobs through the IPFS HTTP API.
type IPFSClient struct {
	apiURL     string
	gatewayURL string
	http       *http.Client
}

// NewIPFSClient creates an archive client against the given IPFS API URL.
func NewIPFSClient(apiURL, gatewayURL string, timeout time.Duration) *IPFSClient {
	return &IPFSClient{
		apiURL:     strings.TrimRight(apiURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		http:       &http.Client{Timeout: timeout},
	}
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Store uploads the blob via /api/v0/add and returns the CID.
func (c *IPFSClient) Store(ctx context.Context, blob []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "metadata.json")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	if _, err := part.Write(blob); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/v0/add", &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: node returned status %d", ErrFailed, resp.StatusCode)
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrFailed, err)
	}
	if added.Hash == "" {
		return "", fmt.Errorf("%w: node returned empty CID", ErrFailed)
	}

	return added.Hash, nil
}

// GatewayURL returns a public gateway link for the CID, for display.
func (c *IPFSClient) GatewayURL(cid string) string {
	if c.gatewayURL == "" {
		return ""
	}
	return c.gatewayURL + "/ipfs/" + cid
}
