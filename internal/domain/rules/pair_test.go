package rules

import "testing"

func TestMatchKeyIsCommutative(t *testing.T) {
	cases := []struct {
		a, b int64
		want string
	}{
		{1, 2, "1_2"},
		{2, 1, "1_2"},
		{42, 7, "7_42"},
	}
	for _, tc := range cases {
		if got := MatchKey(tc.a, tc.b); got != tc.want {
			t.Fatalf("MatchKey(%d,%d) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
		if MatchKey(tc.a, tc.b) != MatchKey(tc.b, tc.a) {
			t.Fatalf("MatchKey(%d,%d) not commutative", tc.a, tc.b)
		}
	}
}

func TestPairKeyIsDirectional(t *testing.T) {
	if PairKey(1, 2) == PairKey(2, 1) {
		t.Fatalf("PairKey must preserve direction")
	}
	if got := PairKey(7, 42); got != "7_42" {
		t.Fatalf("unexpected pair key: %q", got)
	}
}

func TestParseMatchKey(t *testing.T) {
	a, b, err := ParseMatchKey("7_42")
	if err != nil {
		t.Fatalf("parse match key: %v", err)
	}
	if a != 7 || b != 42 {
		t.Fatalf("unexpected participants: %d, %d", a, b)
	}

	for _, bad := range []string{"", "7", "42_7", "x_9", "7_y", "0_5", "-1_5"} {
		if _, _, err := ParseMatchKey(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
