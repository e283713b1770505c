package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Role is what a connection may do within an event.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// CanManage reports whether the role may run the event.
func (r Role) CanManage() bool {
	return r == RoleOrganizer || r == RoleAdmin
}

// Identity is who is behind a connection, scoped to one event.
type Identity struct {
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	AttendeeID uuid.UUID `json:"attendee_id,omitempty"`
}

// Membership grants a role in a single event.
type Membership struct {
	EventID    string `json:"event_id"`
	Role       Role   `json:"role"`
	AttendeeID string `json:"attendee_id,omitempty"`
}

// Claims are the access-token claims issued by the account service.
type Claims struct {
	jwt.StandardClaims
	Role        Role         `json:"role,omitempty"`
	Memberships []Membership `json:"memberships,omitempty"`
}

// JWTAuthorizer verifies access tokens and resolves event membership.
type JWTAuthorizer struct {
	method   jwt.SigningMethod
	key      interface{}
	issuer   string
	audience string
}

// NewHMACAuthorizer verifies HS256 tokens signed with secret.
func NewHMACAuthorizer(secret []byte, issuer, audience string) *JWTAuthorizer {
	return &JWTAuthorizer{method: jwt.SigningMethodHS256, key: secret, issuer: issuer, audience: audience}
}

// NewRSAAuthorizer verifies RS256 tokens against the given public key.
func NewRSAAuthorizer(public *rsa.PublicKey, issuer, audience string) *JWTAuthorizer {
	return &JWTAuthorizer{method: jwt.SigningMethodRS256, key: public, issuer: issuer, audience: audience}
}

// LoadRSAPublicKeyFromPEM reads an RSA public key file.
func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}

// Authorize validates token and returns the caller's identity for eventID.
// Admins are members of every event.
func (a *JWTAuthorizer) Authorize(_ context.Context, token string, eventID uuid.UUID) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != a.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return a.key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return Identity{}, fmt.Errorf("%w: invalid issuer", ErrUnauthorized)
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return Identity{}, fmt.Errorf("%w: invalid audience", ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}

	if claims.Role == RoleAdmin {
		return Identity{UserID: claims.Subject, Role: RoleAdmin}, nil
	}

	for _, m := range claims.Memberships {
		if m.EventID != eventID.String() {
			continue
		}
		id := Identity{UserID: claims.Subject, Role: m.Role}
		if id.Role == "" {
			id.Role = RoleAttendee
		}
		if m.AttendeeID != "" {
			attendeeID, err := uuid.Parse(m.AttendeeID)
			if err != nil {
				return Identity{}, fmt.Errorf("%w: malformed attendee id", ErrUnauthorized)
			}
			id.AttendeeID = attendeeID
		}
		return id, nil
	}
	return Identity{}, fmt.Errorf("%w: user %s is not a member of event %s", ErrForbidden, claims.Subject, eventID)
}
