// Package staff implements the code-gated manual age verification path.
package staff

import "crypto/subtle"

// DefaultCode is the demo staff code.
const DefaultCode = "0000"

// Verifier checks staff codes against a fixed shared secret. It keeps no
// per-session state and never locks out.
type Verifier struct {
	code []byte
}

// NewVerifier returns a verifier for code. An empty code falls back to
// DefaultCode.
func NewVerifier(code string) *Verifier {
	if code == "" {
		code = DefaultCode
	}
	return &Verifier{code: []byte(code)}
}

// Verify reports whether input is exactly the configured code.
func (v *Verifier) Verify(input string) bool {
	return subtle.ConstantTimeCompare([]byte(input), v.code) == 1
}
