package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OfficeDev/teams-toolkit-sub012/arm"
	"github.com/OfficeDev/teams-toolkit-sub012/logging"
)

type templateFlags struct {
	subscriptionID string
	resourceGroup  string
	template       string
	parameters     string
	name           string
	batch          string
}

func (f *templateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subscriptionID, "subscription", "", "subscription id")
	cmd.Flags().StringVar(&f.resourceGroup, "resource-group", "", "resource group name")
	cmd.Flags().StringVar(&f.template, "template", "", "path to a .json or .bicep template")
	cmd.Flags().StringVar(&f.parameters, "parameters", "", "path to the parameters file")
	cmd.Flags().StringVar(&f.name, "name", "", "deployment name")
	cmd.Flags().StringVar(&f.batch, "batch", "", "YAML manifest describing a batch of templates")
	cmd.MarkFlagsMutuallyExclusive("batch", "template")
}

// resolve returns the batch described by the flags, either from a manifest
// or from a single template. Explicit flags override manifest values.
func (f *templateFlags) resolve() (*manifest, error) {
	m := &manifest{}
	if f.batch != "" {
		loaded, err := loadManifest(f.batch)
		if err != nil {
			return nil, err
		}
		m = loaded
	} else if f.template != "" {
		m.Templates = []arm.Template{{
			Path:           f.template,
			Parameters:     f.parameters,
			DeploymentName: f.name,
		}}
	} else {
		return nil, fmt.Errorf("either --template or --batch is required")
	}

	if f.subscriptionID != "" {
		m.SubscriptionID = f.subscriptionID
	}
	if f.resourceGroup != "" {
		m.ResourceGroup = f.resourceGroup
	}
	return m, nil
}

func newArmCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arm",
		Short: "Deploy ARM and Bicep templates",
	}

	flags := &templateFlags{}
	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy one template or a batch in-process and print the outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := flags.resolve()
			if err != nil {
				return err
			}
			services, err := a.Services()
			if err != nil {
				return err
			}

			logger := logging.ComponentLogger("cli")
			logger.Info().
				Str("subscription", m.SubscriptionID).
				Str("resource_group", m.ResourceGroup).
				Int("templates", len(m.Templates)).
				Msg("Deploying templates")

			batch, err := services.Deployer.DeployBatch(cmd.Context(), m.Templates, m.SubscriptionID, m.ResourceGroup)
			if batch != nil {
				for _, r := range batch.Results {
					if r.Err != nil {
						logger.Error().Str("deployment", r.DeploymentName).Err(r.Err).Msg("Template deployment failed")
					}
				}
				if werr := printOutputs(cmd.OutOrStdout(), batch); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	flags.register(deployCmd)
	cmd.AddCommand(deployCmd)

	return cmd
}

// printOutputs merges the outputs of successful templates in input order and
// prints them. A key set by more than one template keeps the last value.
func printOutputs(w io.Writer, batch *arm.BatchResult) error {
	merged := map[string]string{}
	for _, outputs := range batch.Outputs() {
		for k, v := range outputs {
			merged[k] = v
		}
	}
	if err := writeKeyValues(w, merged); err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}
	return nil
}
