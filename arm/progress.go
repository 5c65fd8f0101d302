package arm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/OfficeDev/teams-toolkit-sub012/resourceid"
)

// watchProgress lists the operations of a running deployment every
// ProgressInterval and logs provisioning state changes per resource. It
// gives up after ProgressMaxFailures consecutive listing failures; the
// deployment itself is unaffected.
func (d *Deployer) watchProgress(ctx context.Context, manager ResourceManager, resourceGroup, name string, start time.Time, logger zerolog.Logger) {
	seen := map[string]string{}
	failures := 0

	ticker := time.NewTicker(d.opts.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := d.reportOperations(ctx, manager, resourceGroup, name, start, seen, logger, 0)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			failures = 0
			continue
		}

		failures++
		logger.Debug().Err(err).Int("failures", failures).Msg("Failed to list deployment operations")
		if failures >= d.opts.ProgressMaxFailures {
			logger.Warn().Err(err).Msg("Stopped reporting deployment progress after repeated failures")
			return
		}
	}
}

func (d *Deployer) reportOperations(ctx context.Context, manager ResourceManager, resourceGroup, name string, start time.Time, seen map[string]string, logger zerolog.Logger, depth int) error {
	ops, err := manager.ListOperations(ctx, resourceGroup, name)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if op.TargetResource == nil || op.Timestamp.Before(start) {
			continue
		}
		key := op.TargetResource.ID
		if key == "" {
			key = op.ID
		}
		if seen[key] != op.ProvisioningState {
			seen[key] = op.ProvisioningState
			logger.Info().
				Str("resource", op.TargetResource.ResourceName).
				Str("type", op.TargetResource.ResourceType).
				Str("state", op.ProvisioningState).
				Msg("Deployment operation updated")
		}

		if op.TargetResource.ResourceType != ResourceTypeDeployments || depth+1 >= d.resolver.maxDepth {
			continue
		}
		childGroup := resourceGroup
		if _, rg, err := resourceid.Scope(op.TargetResource.ID); err == nil {
			childGroup = rg
		}
		if err := d.reportOperations(ctx, manager, childGroup, op.TargetResource.ResourceName, start, seen, logger, depth+1); err != nil {
			logger.Debug().Err(err).Str("nested", op.TargetResource.ResourceName).Msg("Failed to list nested deployment operations")
		}
	}
	return nil
}
