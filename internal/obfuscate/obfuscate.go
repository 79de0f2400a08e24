// Package obfuscate hides stored records from casual inspection.
//
// This is light obfuscation, NOT encryption: a repeating-key XOR followed by
// base64. Anyone holding the key (a device fingerprint, or the fallback
// constant) can reverse it. Callers rely on exact reversibility only.
package obfuscate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// FallbackKey is used before a device fingerprint is available
const FallbackKey = "fallback"

// ErrUndecodable is returned for blobs that are not valid for the given key
var ErrUndecodable = errors.New("undecodable blob")

// XOR applies a repeating-key XOR. It is its own inverse.
func XOR(data []byte, key string) []byte {
	if key == "" {
		key = FallbackKey
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// Encode marshals v to JSON, XORs it with key and base64-encodes the result.
func Encode(v any, key string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return base64.StdEncoding.EncodeToString(XOR(raw, key)), nil
}

// Decode reverses Encode into v. Any failure, including a wrong key, yields
// ErrUndecodable.
func Decode(blob, key string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if err := json.Unmarshal(XOR(raw, key), v); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return nil
}
