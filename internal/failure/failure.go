// Package failure maps component errors to the kinds the orchestrators act on.
package failure

import (
	"context"
	"errors"

	"github.com/spigell/hh-screener/internal/ai"
	"github.com/spigell/hh-screener/internal/dedup"
	"github.com/spigell/hh-screener/internal/headhunter"
)

type Kind string

const (
	KindCredential Kind = "credential"
	KindRateLimit  Kind = "rate-limit"
	KindTransient  Kind = "transient"
	KindData       Kind = "data"
	KindParse      Kind = "parse"
	KindThrottled  Kind = "throttled"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// Fatal reports whether the error must stop the whole sync.
func (k Kind) Fatal() bool {
	switch k {
	case KindCredential, KindRateLimit, KindCancelled:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Classify returns the kind of err. A nil error is internal.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, headhunter.ErrCredentialInvalid):
		return KindCredential
	case errors.Is(err, headhunter.ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, headhunter.ErrTransient):
		return KindTransient
	case errors.Is(err, dedup.ErrInvalidPayload),
		errors.Is(err, headhunter.ErrUnexpectedStatus),
		errors.Is(err, headhunter.ErrMalformedPayload):
		return KindData
	case errors.Is(err, ai.ErrParse):
		return KindParse
	case errors.Is(err, ai.ErrThrottled):
		return KindThrottled
	}
	return KindInternal
}

// IsFatal is shorthand for Classify(err).Fatal().
func IsFatal(err error) bool {
	return err != nil && Classify(err).Fatal()
}
