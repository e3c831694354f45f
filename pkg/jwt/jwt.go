package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mbeoliero/tradechat/common"
	"github.com/mbeoliero/tradechat/pkg/errcode"
)

const issuer = "tradechat"

// Claims represents JWT claims
type Claims struct {
	PartyId string          `json:"party_id"`
	Role    common.RoleType `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken generates a new JWT token for a party
func GenerateToken(partyId string, secret string, expireHours int) (string, error) {
	role := common.RoleOf(partyId)
	if role == "" {
		return "", errcode.ErrInvalidParam
	}

	now := time.Now()
	claims := Claims{
		PartyId: partyId,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken parses and validates a JWT token
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}
	if common.RoleOf(claims.PartyId) == "" {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}
