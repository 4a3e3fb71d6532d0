package githubauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	flowerrors "github.com/flowctl/flowctl/pkg/errors"
)

// copilotClaims is the subset of claims GitHub's Copilot token exchange
// embeds in its bearer token. flowctl never verifies the signature (it has
// no GitHub public key and doesn't need one) -- it only reads exp/tid to
// decide when the cached token needs refreshing ahead of Authenticator's
// own expiry check.
type copilotClaims struct {
	jwt.RegisteredClaims
	TrackingID string `json:"tid,omitempty"`
}

// CopilotTokenInfo summarizes a decoded Copilot bearer token.
type CopilotTokenInfo struct {
	TrackingID string
	ExpiresAt  time.Time
}

// InspectCopilotToken decodes (without verifying) a Copilot bearer token's
// claims. Returns a flowerrors.ValidationError if the token isn't
// JWT-shaped -- some Copilot token variants are opaque, in which case the
// caller should fall back to the oauth2.Token.Expiry from the exchange
// response instead.
func InspectCopilotToken(raw string) (*CopilotTokenInfo, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	var claims copilotClaims
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, &flowerrors.ValidationError{Field: "token", Message: "not a JWT-shaped Copilot token", Suggestion: "use the exchange response's own expiry instead"}
	}

	info := &CopilotTokenInfo{TrackingID: claims.TrackingID}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
