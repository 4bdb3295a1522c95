package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainStatement is the domain prefix for statement fingerprints.
// The version suffix allows the algorithm to change later.
const DomainStatement = "rulesql/statement/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StatementID computes a content-addressed fingerprint for a rendered SQL
// statement and its bind parameters. Identical text and parameters always
// produce the same ID, which makes it usable for log correlation and golden
// snapshots.
func StatementID(sql string, params []any) (string, error) {
	if params == nil {
		params = []any{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"sql":    sql,
		"params": params,
	})
	if err != nil {
		return "", fmt.Errorf("StatementID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainStatement, canonical), nil
}
