package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = 12 * time.Hour

// Session roles. Teachers own classes; parents and students reach limited
// portals through access codes.
const (
	RoleTeacher = "teacher"
	RoleParent  = "parent"
	RoleStudent = "student"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubject       = errors.New("session subject must be provided")
	errMissingRole          = errors.New("session role must be provided")
)

// SessionClaims is the classdeck JWT claim set. Subject is the owner id for
// teacher sessions and the student id for portal sessions; portal sessions
// additionally carry the owner and class they are scoped to.
type SessionClaims struct {
	Role    string `json:"role"`
	Owner   string `json:"owner,omitempty"`
	ClassID string `json:"class_id,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuerConfig configures the session token issuer.
type SessionIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// SessionIssuer issues and validates HS256 session tokens.
type SessionIssuer struct {
	config SessionIssuerConfig
	clock  func() time.Time
}

// NewSessionIssuer constructs a SessionIssuer with sane defaults.
func NewSessionIssuer(cfg SessionIssuerConfig) *SessionIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionIssuer{
		config: SessionIssuerConfig{
			SigningSecret: cfg.SigningSecret,
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// IssueTeacherSession produces a signed token for the given owner id.
func (i *SessionIssuer) IssueTeacherSession(owner string) (string, int64, error) {
	return i.issue(SessionClaims{Role: RoleTeacher, Owner: owner}, owner)
}

// IssuePortalSession produces a signed token scoped to one student of one
// owner's class. The role must be parent or student.
func (i *SessionIssuer) IssuePortalSession(role, owner, classID, studentID string) (string, int64, error) {
	if role != RoleParent && role != RoleStudent {
		return "", 0, fmt.Errorf("%w: %q", errMissingRole, role)
	}
	return i.issue(SessionClaims{Role: role, Owner: owner, ClassID: classID}, studentID)
}

func (i *SessionIssuer) issue(claims SessionClaims, subject string) (string, int64, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if subject == "" {
		return "", 0, errMissingSubject
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.config.TokenTTL).UTC()

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.config.Issuer,
		Audience:  []string{i.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the session token is well formed and returns its claims.
func (i *SessionIssuer) ValidateToken(tokenString string) (SessionClaims, error) {
	if len(i.config.SigningSecret) == 0 {
		return SessionClaims{}, errMissingSigningSecret
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.config.SigningSecret, nil
		},
		jwt.WithAudience(i.config.Audience),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return SessionClaims{}, err
	}
	if claims.Subject == "" {
		return SessionClaims{}, errMissingSubject
	}
	if claims.Role == "" {
		return SessionClaims{}, errMissingRole
	}
	return *claims, nil
}
