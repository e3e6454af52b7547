package services

import (
	"context"
	"fmt"
	"time"

	"dancebattlez/apperrors"
	"dancebattlez/models"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthUser is the resolved caller: identity plus the capability set the
// guards check against. Roles are capabilities, not inheritance.
type AuthUser struct {
	ID           primitive.ObjectID
	Username     string
	Registered   bool
	Battler      bool
	Voter        bool
	Judge        bool
	Admin        bool
	SocialLinked bool
}

// Resolver turns a bearer token into an AuthUser. The external façade has
// already verified signature and expiry semantics; the resolver re-checks
// them cheaply and projects the user's role bits. Pure lookup, no
// mutation.
type Resolver struct {
	users  UserStore
	secret string
}

func NewResolver(users UserStore, secret string) *Resolver {
	return &Resolver{users: users, secret: secret}
}

// Resolve validates the token and loads the caller's capability set.
func (r *Resolver) Resolve(ctx context.Context, tokenString string) (*AuthUser, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(r.secret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.New(apperrors.Unauthenticated, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.New(apperrors.Unauthenticated, "Invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		return nil, apperrors.New(apperrors.Unauthenticated, "Invalid token subject")
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.NotFound) {
			return nil, apperrors.New(apperrors.Unauthenticated, "Unknown user")
		}
		return nil, err
	}

	return &AuthUser{
		ID:           user.ID,
		Username:     user.Username,
		Registered:   user.AccountStatus == models.AccountRegistered,
		Battler:      user.IsBattler(),
		Voter:        user.IsVoter(),
		Judge:        user.IsJudge(),
		Admin:        user.IsAdmin(),
		SocialLinked: user.HasSocialLink(),
	}, nil
}

// IssueToken mints an HMAC token for a user id. Used by admin login; the
// community token issuer is an external collaborator.
func (r *Resolver) IssueToken(userID primitive.ObjectID, expiry time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.Hex(),
		"exp": time.Now().Add(expiry).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(r.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
