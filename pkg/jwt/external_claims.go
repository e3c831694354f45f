package jwt

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/tradechat/common"
	"github.com/mbeoliero/tradechat/pkg/errcode"
)

// ExternalClaims represents claims minted by the marketplace identity service.
// The token carries a numeric account id and a role which are mapped to a
// party id via common.Actor.
type ExternalClaims struct {
	UserId int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseExternalToken parses a marketplace token and converts it to Claims.
// defaultRole applies when the token does not carry a role.
func ParseExternalToken(tokenString, secret, defaultRole string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ExternalClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	extClaims, ok := token.Claims.(*ExternalClaims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}

	role := common.RoleType(extClaims.Role)
	if extClaims.Role == "" {
		role = common.RoleType(defaultRole)
	}

	actor := common.Actor{Id: extClaims.UserId, Role: role}
	partyId, err := actor.ToPartyId()
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	return &Claims{
		PartyId:          partyId,
		Role:             role,
		RegisteredClaims: extClaims.RegisteredClaims,
	}, nil
}
