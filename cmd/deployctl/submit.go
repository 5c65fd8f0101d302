package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/OfficeDev/teams-toolkit-sub012/config"
	"github.com/OfficeDev/teams-toolkit-sub012/deploy"
	"github.com/OfficeDev/teams-toolkit-sub012/logging"
	"github.com/OfficeDev/teams-toolkit-sub012/workflows"
)

func newSubmitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Run a deploy on the Temporal worker and wait for its result",
	}
	cmd.AddCommand(newSubmitComputeCmd(a))
	cmd.AddCommand(newSubmitArmCmd(a))
	return cmd
}

type githubFlags struct {
	owner       string
	repo        string
	ref         string
	environment string
	logURL      string
}

func (f *githubFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.owner, "github-owner", "", "report the deploy as a GitHub deployment of this owner")
	cmd.Flags().StringVar(&f.repo, "github-repo", "", "GitHub repository")
	cmd.Flags().StringVar(&f.ref, "ref", "", "commit SHA, branch or tag being deployed")
	cmd.Flags().StringVar(&f.environment, "environment", config.EnvironmentDevelopment, "GitHub deployment environment")
	cmd.Flags().StringVar(&f.logURL, "log-url", "", "build log URL shown on the GitHub deployment")
	cmd.MarkFlagsRequiredTogether("github-owner", "github-repo", "ref")
}

func (f *githubFlags) reference() *workflows.GitHubReference {
	if f.owner == "" {
		return nil
	}
	return &workflows.GitHubReference{
		Owner:       f.owner,
		Repo:        f.repo,
		Ref:         f.ref,
		Environment: f.environment,
		LogURL:      f.logURL,
	}
}

func dialTemporal(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}
	return c, nil
}

func newSubmitComputeCmd(a *app) *cobra.Command {
	flags := &computeFlags{}
	gh := &githubFlags{}

	cmd := &cobra.Command{
		Use:       "compute [webapp|functionapp|storage]",
		Short:     "Run a zip or static site deploy as a workflow",
		Long:      "Run a zip or static site deploy as a workflow. Without a family it is detected from --resource-id.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{deploy.FamilyWebApp, deploy.FamilyFunctionApp, deploy.FamilyStorage},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialTemporal(a.cfg.Temporal)
			if err != nil {
				return err
			}
			defer c.Close()

			family := ""
			if len(args) == 1 {
				family = args[0]
			}

			d := flags.args()
			input := workflows.ComputeDeployWorkflowInput{
				GitHub: gh.reference(),
			}
			input.Deploy.Family = family
			input.Deploy.WorkingDirectory = d.WorkingDirectory
			input.Deploy.ArtifactFolder = d.ArtifactFolder
			input.Deploy.IgnoreFile = d.IgnoreFile
			input.Deploy.ResourceID = d.ResourceID
			input.Deploy.DryRun = d.DryRun

			run, err := c.ExecuteWorkflow(cmd.Context(), client.StartWorkflowOptions{
				ID:        "deploy-" + uuid.NewString(),
				TaskQueue: a.cfg.Temporal.TaskQueue,
			}, workflows.ComputeDeployWorkflow, input)
			if err != nil {
				return fmt.Errorf("failed to start workflow: %w", err)
			}
			logger := logging.WorkflowLogger(run.GetID(), run.GetRunID())
			logger.Info().Str("family", family).Msg("Workflow started, waiting for completion")

			var result workflows.ComputeDeployWorkflowResult
			if err := run.Get(cmd.Context(), &result); err != nil {
				return fmt.Errorf("workflow %s failed: %w", run.GetID(), err)
			}
			return printComputeWorkflowResult(cmd.OutOrStdout(), run.GetID(), &result)
		},
	}
	flags.register(cmd)
	gh.register(cmd)
	return cmd
}

func newSubmitArmCmd(a *app) *cobra.Command {
	flags := &templateFlags{}

	cmd := &cobra.Command{
		Use:   "arm",
		Short: "Run a template batch as a workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := flags.resolve()
			if err != nil {
				return err
			}

			c, err := dialTemporal(a.cfg.Temporal)
			if err != nil {
				return err
			}
			defer c.Close()

			run, err := c.ExecuteWorkflow(cmd.Context(), client.StartWorkflowOptions{
				ID:        "arm-" + uuid.NewString(),
				TaskQueue: a.cfg.Temporal.TaskQueue,
			}, workflows.TemplateBatchWorkflow, workflows.TemplateBatchWorkflowInput{
				SubscriptionID: m.SubscriptionID,
				ResourceGroup:  m.ResourceGroup,
				Templates:      m.Templates,
			})
			if err != nil {
				return fmt.Errorf("failed to start workflow: %w", err)
			}
			wfLogger := logging.WorkflowLogger(run.GetID(), run.GetRunID())
			wfLogger.Info().
				Int("templates", len(m.Templates)).
				Msg("Workflow started, waiting for completion")

			var result workflows.TemplateBatchWorkflowResult
			if err := run.Get(cmd.Context(), &result); err != nil {
				return fmt.Errorf("workflow %s failed: %w", run.GetID(), err)
			}
			return printTemplateOutcomes(cmd.OutOrStdout(), &result)
		},
	}
	flags.register(cmd)
	return cmd
}

func printComputeWorkflowResult(w io.Writer, workflowID string, r *workflows.ComputeDeployWorkflowResult) error {
	values := map[string]string{
		"WORKFLOW_ID":    workflowID,
		"STATUS_UPDATES": strconv.Itoa(r.StatusUpdates),
		"TOTAL_DURATION": r.TotalDuration,
	}
	if r.GitHubDeploymentID != 0 {
		values["GITHUB_DEPLOYMENT_ID"] = strconv.FormatInt(r.GitHubDeploymentID, 10)
	}
	if d := r.Deploy; d != nil {
		values["FAMILY"] = d.Family
		values["TARGET"] = d.SiteName
		values["DRY_RUN"] = strconv.FormatBool(d.DryRun)
		if d.DeploymentID != "" {
			values["DEPLOYMENT_ID"] = d.DeploymentID
		}
		if d.LogURL != "" {
			values["LOG_URL"] = d.LogURL
		}
	}
	return writeKeyValues(w, values)
}

// printTemplateOutcomes prints the merged outputs of successful templates and
// returns an error naming the failed ones.
func printTemplateOutcomes(w io.Writer, r *workflows.TemplateBatchWorkflowResult) error {
	merged := map[string]string{}
	var failed []string
	for _, o := range r.Outcomes {
		if o.Error != "" {
			failed = append(failed, fmt.Sprintf("%s (%s): %s", o.DeploymentName, o.ErrorType, o.Error))
			continue
		}
		for k, v := range o.Outputs {
			merged[k] = v
		}
	}
	if err := writeKeyValues(w, merged); err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d templates failed: %v", len(failed), len(r.Outcomes), failed)
	}
	return nil
}
