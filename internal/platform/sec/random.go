// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// GenerateSecureToken returns byteLength random bytes, hex-encoded.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec_random_token_failed: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}

// GenerateNumericCode returns a uniformly random code of exactly digits decimal
// digits, zero-padded. Every value in [0, 10^digits) is reachable.
func GenerateNumericCode(digits int) (string, error) {
	upperBound := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	value, err := rand.Int(rand.Reader, upperBound)
	if err != nil {
		return "", fmt.Errorf("sec_random_code_failed: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, value), nil
}

// RandomInt returns a uniformly random integer in [min, max].
func RandomInt(min, max int) (int, error) {
	if max < min {
		return 0, fmt.Errorf("sec_random_int_invalid_range: %d > %d", min, max)
	}
	value, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, fmt.Errorf("sec_random_int_failed: %w", err)
	}
	return min + int(value.Int64()), nil
}
