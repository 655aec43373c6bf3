// Package credential inspects verifiable credentials issued by the backend
// as ES256-signed JWTs.
package credential

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod is the only algorithm the backend signs credentials with.
const SigningMethod = "ES256"

var (
	ErrNotCredential    = errors.New("token carries no verifiable credential")
	ErrInvalidSignature = errors.New("credential signature is invalid")
)

// AccomplishmentClaim is the accomplishment block of the credential subject.
type AccomplishmentClaim struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AchievedOn  string `json:"achievedOn"`
}

type SubjectClaim struct {
	ID             string              `json:"id"`
	Accomplishment AccomplishmentClaim `json:"accomplishment"`
}

// VerifiableCredential mirrors the W3C credential carried in the "vc" claim.
type VerifiableCredential struct {
	Context           []string     `json:"@context"`
	ID                string       `json:"id"`
	Type              []string     `json:"type"`
	Issuer            string       `json:"issuer"`
	IssuanceDate      string       `json:"issuanceDate"`
	CredentialSubject SubjectClaim `json:"credentialSubject"`
}

// Claims is the JWT claim set of an issued credential.
type Claims struct {
	jwt.RegisteredClaims
	VC VerifiableCredential `json:"vc"`
}

// Credential is the decoded, display-ready view of a credential JWT.
type Credential struct {
	ID             string
	Types          []string
	Issuer         string
	Subject        string
	IssuedAt       time.Time
	Accomplishment AccomplishmentClaim
	// AchievedOn is zero when the backend sent an unparseable timestamp.
	AchievedOn time.Time
	Raw        string
}

// Decode parses a credential JWT without checking its signature.
func Decode(token string) (*Credential, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &claims); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return fromClaims(token, &claims)
}

// Verify parses a credential JWT and checks its ES256 signature against the
// issuer public key.
func Verify(token string, issuer *ecdsa.PublicKey) (*Credential, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return issuer, nil
	}, jwt.WithValidMethods([]string{SigningMethod}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrECDSAVerification) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("verify credential: %w", err)
	}
	return fromClaims(token, &claims)
}

// LoadIssuerKey reads a PEM-encoded ECDSA public key.
func LoadIssuerKey(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseECPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse issuer key %s: %w", path, err)
	}
	return key, nil
}

func fromClaims(token string, c *Claims) (*Credential, error) {
	if c.VC.ID == "" && len(c.VC.Type) == 0 {
		return nil, ErrNotCredential
	}
	cred := &Credential{
		ID:             c.VC.ID,
		Types:          c.VC.Type,
		Issuer:         firstNonEmpty(c.Issuer, c.VC.Issuer),
		Subject:        firstNonEmpty(c.Subject, c.VC.CredentialSubject.ID),
		Accomplishment: c.VC.CredentialSubject.Accomplishment,
		Raw:            strings.TrimSpace(token),
	}
	if c.IssuedAt != nil {
		cred.IssuedAt = c.IssuedAt.Time
	}
	if at, err := parseTimestamp(c.VC.CredentialSubject.Accomplishment.AchievedOn); err == nil {
		cred.AchievedOn = at
	}
	return cred, nil
}

// achievedOn comes from Python's isoformat(), which may omit the zone.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
