package auth

// CredentialKind distinguishes the two ways a caller can authenticate.
type CredentialKind int

const (
	// KindSessionToken is a short-lived signed token obtained via login.
	KindSessionToken CredentialKind = iota
	// KindServiceKey is a long-lived api key held by automation.
	KindServiceKey
)

// Credential is an unverified credential as presented by a caller. Construct
// with SessionToken or ServiceKey; resolve with Resolver.Resolve.
type Credential struct {
	kind CredentialKind
	raw  string
}

// SessionToken wraps a raw bearer token.
func SessionToken(raw string) Credential {
	return Credential{kind: KindSessionToken, raw: raw}
}

// ServiceKey wraps a raw api key.
func ServiceKey(raw string) Credential {
	return Credential{kind: KindServiceKey, raw: raw}
}

// Kind returns the credential's kind.
func (c Credential) Kind() CredentialKind { return c.kind }
