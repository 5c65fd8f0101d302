package arm

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

// ValidateBatch checks a batch before anything is deployed and reports every
// violation at once.
func ValidateBatch(templates []Template, subscriptionID, resourceGroup string) error {
	var errs error

	if _, err := uuid.Parse(subscriptionID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("subscription id %q is not a valid UUID", subscriptionID))
	}
	if strings.TrimSpace(resourceGroup) == "" {
		errs = multierr.Append(errs, fmt.Errorf("resource group name is empty"))
	}
	if len(templates) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("no templates to deploy"))
	}

	for i, t := range templates {
		if strings.TrimSpace(t.DeploymentName) == "" {
			errs = multierr.Append(errs, fmt.Errorf("template %d: deployment name is empty", i))
		}
		switch ext := strings.ToLower(filepath.Ext(t.Path)); ext {
		case ".json", ".bicep":
		default:
			errs = multierr.Append(errs, fmt.Errorf("template %d: %q must be a .json or .bicep file", i, t.Path))
		}
		if t.Parameters != "" && strings.ToLower(filepath.Ext(t.Parameters)) != ".json" {
			errs = multierr.Append(errs, fmt.Errorf("template %d: parameters file %q must be a .json file", i, t.Parameters))
		}
	}

	if errs != nil {
		return &deployerr.ValidationError{Violations: multierr.Errors(errs)}
	}
	return nil
}
