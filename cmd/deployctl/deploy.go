package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/OfficeDev/teams-toolkit-sub012/deploy"
	"github.com/OfficeDev/teams-toolkit-sub012/logging"
)

type computeFlags struct {
	workingDir     string
	artifactFolder string
	ignoreFile     string
	resourceID     string
	dryRun         bool
}

func (f *computeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.workingDir, "working-dir", ".", "project directory")
	cmd.Flags().StringVar(&f.artifactFolder, "artifact-folder", "", "folder to deploy, relative to --working-dir")
	cmd.Flags().StringVar(&f.ignoreFile, "ignore-file", "", "ignore file, relative to --working-dir")
	cmd.Flags().StringVar(&f.resourceID, "resource-id", "", "resource id of the target site or storage account")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "package only, do not deploy")
	_ = cmd.MarkFlagRequired("resource-id")
}

func (f *computeFlags) args() deploy.Args {
	return deploy.Args{
		WorkingDirectory: f.workingDir,
		ArtifactFolder:   f.artifactFolder,
		IgnoreFile:       f.ignoreFile,
		ResourceID:       f.resourceID,
		DryRun:           f.dryRun,
	}
}

// runDeploy deploys in-process. An empty family is detected from the
// resource id.
func runDeploy(cmd *cobra.Command, a *app, family string, flags *computeFlags) error {
	services, err := a.Services()
	if err != nil {
		return err
	}
	logger := logging.ComponentLogger("cli")

	args := flags.args()
	args.Progress = func(step string) {
		logger.Info().Str("family", family).Str("step", step).Msg("Deploy step")
	}

	result, err := services.Driver.Deploy(cmd.Context(), family, args)
	if err != nil {
		return err
	}
	return printComputeResult(cmd.OutOrStdout(), result)
}

func newDeployCmd(a *app) *cobra.Command {
	detected := &computeFlags{}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy an artifact in-process",
		Long: `Deploy an artifact in-process. Without a subcommand the target family is
detected from --resource-id: sites deploy as web apps, storage accounts as
static websites.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, a, "", detected)
		},
	}
	detected.register(cmd)

	families := []struct {
		name  string
		short string
	}{
		{deploy.FamilyWebApp, "Zip deploy to an App Service web app"},
		{deploy.FamilyFunctionApp, "Zip deploy to a function app and restart it"},
		{deploy.FamilyStorage, "Replace the static website content of a storage account"},
	}

	for _, family := range families {
		flags := &computeFlags{}
		sub := &cobra.Command{
			Use:   family.name,
			Short: family.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDeploy(cmd, a, family.name, flags)
			},
		}
		flags.register(sub)
		cmd.AddCommand(sub)
	}

	return cmd
}

func printComputeResult(w io.Writer, r *deploy.Result) error {
	values := map[string]string{
		"FAMILY":   r.Family,
		"TARGET":   r.Target.InstanceID,
		"DRY_RUN":  strconv.FormatBool(r.DryRun),
		"DURATION": r.Duration.String(),
	}
	if r.ArtifactPath != "" {
		values["ARTIFACT_PATH"] = r.ArtifactPath
	}
	if r.Deployment != nil {
		values["DEPLOYMENT_ID"] = r.Deployment.ID
		values["DEPLOYMENT_STATUS"] = r.Deployment.Status.String()
	}
	if r.Family == deploy.FamilyStorage {
		values["UPLOADED"] = strconv.Itoa(r.Uploaded)
		values["DELETED"] = strconv.Itoa(r.Deleted)
	}
	if err := writeKeyValues(w, values); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
