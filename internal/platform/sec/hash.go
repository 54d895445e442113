// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultHashCost is the bcrypt work factor used for stored passwords.
const DefaultHashCost = 12

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// Hasher hashes and verifies passwords with bcrypt.
//
// # Isolation
//
// Every hash or comparison takes a slot from a weighted semaphore, so at most
// `concurrency` bcrypt computations run at once. Waiters queue on the semaphore
// and give up as soon as their request context is cancelled.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
}

// NewHasher builds a [Hasher]. A non-positive concurrency defaults to GOMAXPROCS.
func NewHasher(cost int, concurrency int64) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	if concurrency <= 0 {
		concurrency = int64(runtime.GOMAXPROCS(0))
	}
	return &Hasher{cost: cost, slots: semaphore.NewWeighted(concurrency)}
}

// Hash returns the bcrypt hash of plainTextPassword.
func (hasher *Hasher) Hash(context context.Context, plainTextPassword string) (string, error) {
	if err := hasher.slots.Acquire(context, 1); err != nil {
		return "", fmt.Errorf("sec_hash_wait_cancelled: %w", err)
	}
	defer hasher.slots.Release(1)

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), hasher.cost)
	if err != nil {
		return "", fmt.Errorf("sec_hash_failed: %w", err)
	}
	return string(hashedBytes), nil
}

// Compare reports whether plainTextPassword matches existingHash.
//
// A mismatch is (false, nil). Any other bcrypt failure (malformed hash,
// cancelled wait) is returned as an error.
func (hasher *Hasher) Compare(context context.Context, existingHash, plainTextPassword string) (bool, error) {
	if err := hasher.slots.Acquire(context, 1); err != nil {
		return false, fmt.Errorf("sec_compare_wait_cancelled: %w", err)
	}
	defer hasher.slots.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("sec_compare_failed: %w", err)
	}
}

// CompareDummy burns one comparison against a fixed hash of the same cost.
// Login paths that have no hash to compare call it so their latency matches
// a real mismatch.
func (hasher *Hasher) CompareDummy(context context.Context, plainTextPassword string) {
	hasher.dummyOnce.Do(func() {
		hasher.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gatekeeper-timing-equalizer"), hasher.cost)
	})
	if hasher.dummyHash == nil {
		return
	}
	_, _ = hasher.Compare(context, string(hasher.dummyHash), plainTextPassword)
}
