package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("firecrawl")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()

	err := NewError(ErrRateLimited, "scrape quota exceeded").WithHTTPStatus(429)
	if !IsRateLimited(err) {
		t.Fatalf("expected rate-limited error to be detected")
	}

	wrapped := fmt.Errorf("batch item 3: %w", err)
	if !IsRateLimited(wrapped) {
		t.Fatalf("expected detection through wrapping")
	}

	if IsRateLimited(NewError(ErrScrapeFailed, "boom")) {
		t.Fatalf("plain scrape failure must not be rate-limited")
	}
	if IsRateLimited(errors.New("429")) {
		t.Fatalf("unstructured error must not be rate-limited")
	}
}
