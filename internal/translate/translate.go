// Package translate fills missing message variants with machine
// translations.
package translate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request asks for Texts, keyed by message id, to be translated.
type Request struct {
	SourceLanguageTag string
	TargetLanguageTag string
	Texts             map[string]string
}

// Translator returns translations keyed like Request.Texts. Ids missing
// from the result are treated as untranslated.
type Translator interface {
	Name() string
	Translate(ctx context.Context, req Request) (map[string]string, error)
}

// PermanentError marks failures that retrying cannot fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Middleware decorates a Translator.
type Middleware func(Translator) Translator

// Wrap applies middlewares left to right: Wrap(t, A, B) is A(B(t)).
func Wrap(inner Translator, mws ...Middleware) Translator {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// Retry retries Translate up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors and cancellation stop at once.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Translator) Translator {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Translator
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Translate(ctx context.Context, req Request) (map[string]string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.Translate(ctx, req)
		if err == nil {
			return out, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.base * time.Duration(1<<i)):
		}
	}
	return nil, fmt.Errorf("%s: %d attempts: %w", r.next.Name(), r.max, last)
}
