// Package hashutil implements the content-addressed hashing and
// canonical JSON encoding used throughout the store: every hash is
// "sha256:" followed by 64 lowercase hex characters, and every
// persisted JSON column is written with sorted keys so identical
// inputs always produce an identical content_hash.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
)

const prefix = "sha256:"

// Pattern is the regex callers may use to verify a hash's shape.
var Pattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// HashBytes returns the canonical hash of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return prefix + hex.EncodeToString(sum[:])
}

// HashString is a convenience wrapper over HashBytes.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashFile hashes a file's contents. The round-trip law
// hashFile(path) == hashBytes(readBytes(path)) must hold.
func HashFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hashutil: read %s: %w", path, err)
	}
	return HashBytes(b), nil
}

// CanonicalJSON marshals v with map keys sorted at every nesting level,
// so semantically identical values always produce byte-identical JSON.
// encoding/json already sorts map[string]any keys; canonicalization here
// instead normalizes by round-tripping through a generic representation
// so struct field order and pointer/value distinctions cannot cause
// spurious hash drift.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hashutil: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("hashutil: re-decode: %w", err)
	}
	return encodeCanonical(generic)
}

// HashJSON canonicalizes v and hashes the result.
func HashJSON(v any) (string, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

func encodeCanonical(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := encodeCanonical(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte{'['}
		for i, elem := range t {
			if i > 0 {
				out = append(out, ',')
			}
			eb, err := encodeCanonical(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, eb...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(t)
	}
}
