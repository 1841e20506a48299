package session

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
)

var ErrNoUserID = errors.New("token carries no user id")

// Identity is the authenticated local user.
type Identity struct {
	UserID string
	Token  string
}

// IdentityFromToken reads the user id from an access token's user_id (or
// sub) claim. The signature is not checked: the relay verifies the token,
// the client only needs to know who it is.
func IdentityFromToken(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("parse access token: %w", err)
	}
	id := claimString(claims["user_id"])
	if id == "" {
		id = claimString(claims["sub"])
	}
	if id == "" {
		return Identity{}, ErrNoUserID
	}
	return Identity{UserID: id, Token: token}, nil
}

func claimString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}
