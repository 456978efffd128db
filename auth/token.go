package auth

import (
	"fmt"
	"time"

	"vetchat/domain"
	"vetchat/errors"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
// Tokens are issued by the account service; this module only verifies them.
type CustomClaims struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	DisplayName string   `json:"display_name,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Role        string   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Profile returns the public fields carried by the credential.
func (c CustomClaims) Profile() domain.Profile {
	return domain.Profile{
		ID:          c.UserID,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		Role:        domain.Role(c.Role),
	}
}

type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// GenerateToken creates a signed JWT. Used by tests and the CLI client.
func (a *Authenticator) GenerateToken(profile domain.Profile, roles []string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:      profile.ID,
		Roles:       roles,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		Role:        string(profile.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}

	// Create the token using the HS256 algorithm (HMAC with SHA256).
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Authenticate parses and validates the signature, expiration and issuer of a JWT string.
func (a *Authenticator) Authenticate(tokenString string) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: token is missing", errors.ErrAuthentication)
	}
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		options = append(options, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", errors.ErrAuthentication)
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if !domain.ValidUserID(claims.UserID) {
		return nil, fmt.Errorf("%w: invalid user id", errors.ErrAuthentication)
	}
	return claims, nil
}
