package core

import (
	"errors"
	"fmt"
	"strings"
)

// Account patterns are colon-delimited paths with an optional trailing
// wildcard segment. "Expenses:Food:*" matches "Expenses:Food" itself and
// every descendant such as "Expenses:Food:Groceries". Without the wildcard
// the pattern matches exactly one account. This is deliberately not a
// regex engine; matching stays auditable.

const patternWildcard = "*"

var ErrInvalidPattern = errors.New("invalid account pattern")

// ValidateAccountName checks a plain account path (no wildcard).
func ValidateAccountName(account string) error {
	if strings.TrimSpace(account) == "" {
		return ErrEmptyAccount
	}
	for _, seg := range strings.Split(account, ":") {
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("account %q has an empty segment", account)
		}
		if seg == patternWildcard {
			return fmt.Errorf("account %q may not contain a wildcard", account)
		}
	}
	return nil
}

// ValidateAccountPattern checks a pattern. The wildcard may only appear as
// the final segment.
func ValidateAccountPattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	segs := strings.Split(pattern, ":")
	for i, seg := range segs {
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPattern, pattern)
		}
		if seg == patternWildcard && i != len(segs)-1 {
			return fmt.Errorf("%w: wildcard must be the last segment in %q", ErrInvalidPattern, pattern)
		}
	}
	if len(segs) == 1 && segs[0] == patternWildcard {
		// bare "*" matches everything
		return nil
	}
	return nil
}

// MatchesPattern reports whether an account name falls under a pattern.
func MatchesPattern(pattern, account string) bool {
	if pattern == "" || account == "" {
		return false
	}
	if pattern == patternWildcard {
		return true
	}
	if strings.HasSuffix(pattern, ":"+patternWildcard) {
		prefix := strings.TrimSuffix(pattern, ":"+patternWildcard)
		return account == prefix || strings.HasPrefix(account, prefix+":")
	}
	return account == pattern
}
