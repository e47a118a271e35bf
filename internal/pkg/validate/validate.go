package validate

import (
	"strings"

	"github.com/emberlabs/ember/backend/internal/domain/rules"
)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

func PositiveID(id int64) bool {
	return id > 0
}

// MatchID reports whether the value has the canonical sorted-pair shape.
func MatchID(value string) bool {
	_, _, err := rules.ParseMatchKey(value)
	return err == nil
}
