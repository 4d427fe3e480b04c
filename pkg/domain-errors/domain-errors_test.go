package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// Justification: These are core error primitives used at every trust boundary.
// Unit tests ensure invariants like "wrapped domain errors preserve original code"
// and "unavailability stays retryable" are maintained.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestWrapPreservesOriginalCode() {
	inner := New(CodeCryptographicFailure, "signature mismatch")
	wrapped := Wrap(inner, CodeInternal, "verification failed")

	s.True(HasCode(wrapped, CodeCryptographicFailure))
	s.False(HasCode(wrapped, CodeInternal))
}

func (s *DomainErrorsSuite) TestWrapForeignError() {
	inner := fmt.Errorf("dial tcp: connection refused")
	wrapped := Wrap(inner, CodeUnavailable, "trust registry unreachable")

	s.True(HasCode(wrapped, CodeUnavailable))
	s.True(errors.Is(wrapped, wrapped))
	s.ErrorIs(wrapped, &Error{Code: CodeUnavailable})
}

func (s *DomainErrorsSuite) TestUnwrapChain() {
	inner := errors.New("root cause")
	wrapped := Wrap(inner, CodeMalformed, "bad payload")

	s.ErrorIs(wrapped, inner)
}

func (s *DomainErrorsSuite) TestRetryable() {
	s.Run("unavailable is retryable", func() {
		s.True(Retryable(New(CodeUnavailable, "registry down")))
	})
	s.Run("timeout is retryable", func() {
		s.True(Retryable(New(CodeTimeout, "deadline exceeded")))
	})
	s.Run("terminal codes are not retryable", func() {
		s.False(Retryable(New(CodeMalformed, "bad json")))
		s.False(Retryable(New(CodeCryptographicFailure, "bad signature")))
		s.False(Retryable(New(CodePolicyViolation, "expired")))
	})
	s.Run("foreign errors are not retryable", func() {
		s.False(Retryable(errors.New("whatever")))
	})
}

func (s *DomainErrorsSuite) TestMessageFallsBackToCode() {
	err := New(CodePolicyViolation, "")
	s.Equal("policy_violation", err.Error())
}
