// Package canonical produces the deterministic serialization and content
// hash of certificate metadata. The canonical form is RFC 8785 (JSON
// Canonicalization Scheme) applied to the metadata JSON, so independent
// implementations reproduce byte-identical input to the digest.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/skillchain/certserver/internal/models"
)

// Serialize returns the RFC 8785 canonical JSON form of the metadata.
func Serialize(meta models.CertificateMetadata) ([]byte, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize metadata: %w", err)
	}

	return canon, nil
}

// Hash returns the lowercase hex SHA-256 digest of the canonical
// serialization of the metadata.
func Hash(meta models.CertificateMetadata) (string, error) {
	canon, err := Serialize(meta)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
