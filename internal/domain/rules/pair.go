package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypingStaleAfter is the read-side staleness window for typing
// indicators. A stale-but-undeleted indicator is filtered out by every
// reader independently; no store-side TTL is required for correctness.
const TypingStaleAfter = 5 * time.Second

// PairKey builds the ordered swipe key "{sender}_{receiver}". Direction
// matters: PairKey(a, b) != PairKey(b, a).
func PairKey(senderID, receiverID int64) string {
	return fmt.Sprintf("%d_%d", senderID, receiverID)
}

// MatchKey builds the canonical match id "{min}_{max}". It is
// commutative, so both racing writers target the same match row.
func MatchKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d_%d", userA, userB)
}

// SortPair returns the two ids in canonical (min, max) order.
func SortPair(userA, userB int64) (int64, int64) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

// ParseMatchKey splits a canonical match id back into its participants.
func ParseMatchKey(key string) (int64, int64, error) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed match key %q", key)
	}
	a, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed match key %q: %w", key, err)
	}
	b, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed match key %q: %w", key, err)
	}
	if a <= 0 || b <= 0 || a >= b {
		return 0, 0, fmt.Errorf("malformed match key %q", key)
	}
	return a, b, nil
}
