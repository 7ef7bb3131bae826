package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures that are expected to clear on retry
	// (network errors, timeouts, rate limits).
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks structural problems with the asset set or cache
	// file. These are fatal: no partial pipeline run is started.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable configuration (missing keypair, bad
	// provider settings). Fatal before any state is mutated.
	ErrConfiguration = errors.New("configuration error")
	// ErrInsufficientFunds marks a storage or ledger balance too low for the
	// pending work. Fatal before any state is mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConsistency marks on-chain state that contradicts the cache in a way
	// reconciliation cannot resolve. Reported per index; the run continues
	// for unaffected indices.
	ErrConsistency = errors.New("consistency fault")
	// ErrPermanent marks a single item that exhausted its retry ceiling.
	// Recorded, never escalated to whole-run failure.
	ErrPermanent = errors.New("permanent item failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error must abort the whole run rather than a
// single item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsRetryable reports whether an error may clear on a further attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || IsFatal(err) || errors.Is(err, ErrConsistency) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
