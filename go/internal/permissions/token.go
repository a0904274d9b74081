package permissions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that cannot be parsed or verified.
var ErrInvalidToken = errors.New("invalid access token")

const UserTypeClient = "cliente"

// UserID accepts numeric and string user ids.
type UserID int64

func (id *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse user id %q: %w", s, err)
		}
		*id = UserID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	*id = UserID(n)
	return nil
}

// Claims are the access token claims issued by the backend.
type Claims struct {
	UserID      UserID          `json:"user_id"`
	UserType    string          `json:"user_type,omitempty"`
	Username    string          `json:"username,omitempty"`
	Superuser   bool            `json:"es_superusuario,omitempty"`
	Admin       bool            `json:"es_administrador,omitempty"`
	Permissions json.RawMessage `json:"permisos,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the current user as seen by the console.
type Identity struct {
	UserID      int64
	UserType    string
	Username    string
	Permissions Set
	ExpiresAt   time.Time
}

// IsClient reports whether the token belongs to a bidding client.
func (i Identity) IsClient() bool {
	return i.UserType == UserTypeClient
}

// FromToken reads the identity carried by an access token. When key is empty
// the signature is not checked; the backend remains the token authority.
func FromToken(token string, key []byte) (Identity, error) {
	claims := &Claims{}

	if len(key) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	} else {
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}

	set, err := FromProfile(claims.Permissions)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Superuser || claims.Admin {
		set.All = true
	}

	identity := Identity{
		UserID:      int64(claims.UserID),
		UserType:    claims.UserType,
		Username:    claims.Username,
		Permissions: set,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
