package pulls

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingChannel matches every ValidationError via errors.Is.
var ErrMissingChannel = errors.New("missing required channel")

// ValidationError reports a datalog that cannot be segmented.
type ValidationError struct {
	Missing []string
	// Ragged lists channels whose column length differs from Time (sec).
	Ragged []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 && len(e.Ragged) > 0 {
		return "cannot segment datalog: row count differs from time column for channel(s) " + quoteAll(e.Ragged)
	}
	return "cannot segment datalog: missing required channel(s) " + quoteAll(e.Missing)
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrMissingChannel
}

// Shown when segmentation succeeds but no pull survives the filters.
const (
	NoPullsMessage = "No pulls found in datalog."
	NoPullsHint    = "Your throttle threshold may be too high or the time filter too long."
)
