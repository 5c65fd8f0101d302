package deploy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/OfficeDev/teams-toolkit-sub012/resourceid"
	"github.com/OfficeDev/teams-toolkit-sub012/zipdeploy"
)

// SiteManager is the management-plane surface a zip deploy needs.
type SiteManager interface {
	PublishingCredentials(ctx context.Context, target resourceid.Target) (username, password string, err error)
	Restart(ctx context.Context, target resourceid.Target) error
}

// Family is a zip-deployed compute target. It names the upload endpoint and
// the action that runs after the deployment settles.
type Family interface {
	Name() string
	Endpoint(target resourceid.Target) string
	PostAction(ctx context.Context, target resourceid.Target) error
}

// Family names accepted by Driver.Deploy.
const (
	FamilyWebApp      = "webapp"
	FamilyFunctionApp = "functionapp"
	FamilyStorage     = "storage"
)

// WebApp deploys to App Service. It has no post action.
type WebApp struct {
	SCMHostSuffix string
}

func (w WebApp) Name() string { return FamilyWebApp }

func (w WebApp) Endpoint(target resourceid.Target) string {
	return zipdeploy.Endpoint(target.InstanceID, w.SCMHostSuffix)
}

func (w WebApp) PostAction(context.Context, resourceid.Target) error { return nil }

// FunctionApp deploys to Azure Functions and restarts the site afterwards
// so triggers pick up the new code.
type FunctionApp struct {
	SCMHostSuffix string
	Sites         SiteManager
}

func (f FunctionApp) Name() string { return FamilyFunctionApp }

func (f FunctionApp) Endpoint(target resourceid.Target) string {
	return zipdeploy.Endpoint(target.InstanceID, f.SCMHostSuffix)
}

func (f FunctionApp) PostAction(ctx context.Context, target resourceid.Target) error {
	if err := f.Sites.Restart(ctx, target); err != nil {
		return fmt.Errorf("failed to restart %s: %w", target.InstanceID, err)
	}
	return nil
}

// runPostAction treats post actions as best effort.
func runPostAction(ctx context.Context, family Family, target resourceid.Target, logger zerolog.Logger) {
	if err := family.PostAction(ctx, target); err != nil {
		logger.Warn().
			Err(err).
			Str("family", family.Name()).
			Str("site", target.InstanceID).
			Msg("Post-deploy action failed, the deployment itself succeeded")
	}
}
