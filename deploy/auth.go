package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/golang-jwt/jwt/v4"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
	"github.com/OfficeDev/teams-toolkit-sub012/resourceid"
	"github.com/OfficeDev/teams-toolkit-sub012/zipdeploy"
)

// tokenSkew is how close to expiry a bearer token may be and still be sent.
const tokenSkew = time.Minute

// authFor prefers a management bearer token and falls back to the site's
// publishing credentials unless AADDeployOnly is set. It runs once per
// deploy.
func (d *Driver) authFor(ctx context.Context, target resourceid.Target) (zipdeploy.Auth, error) {
	var tokenErr error
	if d.deps.Credential != nil {
		tok, err := d.deps.Credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{d.cfg.ManagementScope}})
		switch {
		case err != nil:
			tokenErr = err
		case !bearerUsable(tok.Token, d.now()):
			tokenErr = fmt.Errorf("access token is expired")
		default:
			return zipdeploy.BearerAuth(tok.Token), nil
		}
	} else {
		tokenErr = fmt.Errorf("no credential configured")
	}

	if d.cfg.AADDeployOnly {
		return zipdeploy.Auth{}, fmt.Errorf("%w: %v", deployerr.ErrAADOnly, tokenErr)
	}

	d.logger.Info().
		Err(tokenErr).
		Str("site", target.InstanceID).
		Msg("Bearer token unavailable, falling back to publishing credentials")

	if d.deps.Sites == nil {
		return zipdeploy.Auth{}, fmt.Errorf("no site manager configured for publishing credentials")
	}
	user, pass, err := d.deps.Sites.PublishingCredentials(ctx, target)
	if err != nil {
		return zipdeploy.Auth{}, fmt.Errorf("failed to list publishing credentials of %s: %w", target.InstanceID, err)
	}
	return zipdeploy.BasicAuth(user, pass), nil
}

// bearerUsable reports whether raw can be sent. Tokens that do not parse as
// JWTs are passed through untouched; only a readable, past expiry rejects
// the token.
func bearerUsable(raw string, now time.Time) bool {
	if raw == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Time.After(now.Add(tokenSkew))
}
