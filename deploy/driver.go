// Package deploy pushes a local build output to an Azure compute target.
//
// Zip-deployed sites (web apps and function apps) share one pipeline:
// package, authenticate, upload, poll, post action, cleanup. Static websites
// on blob storage are synced blob by blob instead.
package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/rs/zerolog"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
	"github.com/OfficeDev/teams-toolkit-sub012/packager"
	"github.com/OfficeDev/teams-toolkit-sub012/resourceid"
	"github.com/OfficeDev/teams-toolkit-sub012/zipdeploy"
)

// Progress steps reported through Args.Progress.
const (
	StepPacking     = "packing"
	StepCredentials = "credentials"
	StepUploading   = "uploading"
	StepPolling     = "polling"
	StepPostAction  = "post-action"
	StepCleaning    = "cleaning"
	StepSyncing     = "syncing"
)

// Args describe one deploy invocation.
type Args struct {
	WorkingDirectory string
	// ArtifactFolder is resolved against WorkingDirectory when relative.
	ArtifactFolder string
	// IgnoreFile is resolved against WorkingDirectory when relative.
	IgnoreFile string
	ResourceID string
	// DryRun packages the artifact and stops before any remote call.
	DryRun   bool
	Progress func(step string)
}

func (a Args) progress(step string) {
	if a.Progress != nil {
		a.Progress(step)
	}
}

// Result summarizes a finished deploy.
type Result struct {
	Family       string
	Target       resourceid.Target
	ArtifactPath string
	Deployment   *zipdeploy.DeployResult
	Uploaded     int
	Deleted      int
	DryRun       bool
	Duration     time.Duration
	// Outputs is always empty for compute deploys.
	Outputs map[string]string
}

// Config holds the static settings of a Driver.
type Config struct {
	TempFolder      string
	CacheFile       string
	ManagementScope string
	SCMHostSuffix   string
	// AADDeployOnly forbids the publishing credential fallback.
	AADDeployOnly bool
}

// Dependencies are the collaborators of a Driver.
type Dependencies struct {
	Packager   *packager.Packager
	ZipDeploy  *zipdeploy.Client
	Credential azcore.TokenCredential
	Sites      SiteManager
	Blobs      BlobStoreFactory
}

// Driver runs deploys.
type Driver struct {
	cfg    Config
	deps   Dependencies
	logger zerolog.Logger
	now    func() time.Time
}

// NewDriver creates a Driver.
func NewDriver(cfg Config, deps Dependencies, logger zerolog.Logger) *Driver {
	if cfg.TempFolder == "" {
		cfg.TempFolder = packager.DefaultTempFolder
	}
	if cfg.CacheFile == "" {
		cfg.CacheFile = "deployment.zip"
	}
	if cfg.ManagementScope == "" {
		cfg.ManagementScope = "https://management.azure.com/.default"
	}
	if cfg.SCMHostSuffix == "" {
		cfg.SCMHostSuffix = "scm.azurewebsites.net"
	}
	if deps.Packager == nil {
		deps.Packager = packager.New(logger)
	}
	return &Driver{cfg: cfg, deps: deps, logger: logger, now: time.Now}
}

// Family returns the zip family registered under name.
func (d *Driver) Family(name string) (Family, error) {
	switch name {
	case FamilyWebApp:
		return WebApp{SCMHostSuffix: d.cfg.SCMHostSuffix}, nil
	case FamilyFunctionApp:
		return FunctionApp{SCMHostSuffix: d.cfg.SCMHostSuffix, Sites: d.deps.Sites}, nil
	default:
		return nil, fmt.Errorf("unknown deploy family %q", name)
	}
}

// FamilyForKind names the family that serves a target kind. Sites default
// to the web app family.
func FamilyForKind(kind resourceid.Kind) (string, error) {
	switch kind {
	case resourceid.KindSite:
		return FamilyWebApp, nil
	case resourceid.KindStorageAccount:
		return FamilyStorage, nil
	default:
		return "", fmt.Errorf("no deploy family for target kind %s", kind)
	}
}

// Deploy dispatches to the pipeline of the named family. An empty family is
// detected from the shape of args.ResourceID.
func (d *Driver) Deploy(ctx context.Context, family string, args Args) (*Result, error) {
	if family == "" {
		if args.ResourceID == "" {
			return nil, deployerr.MissingArgument("resourceId")
		}
		target, err := resourceid.Parse(args.ResourceID)
		if err != nil {
			return nil, err
		}
		if family, err = FamilyForKind(target.Kind); err != nil {
			return nil, err
		}
		d.logger.Debug().Str("family", family).Str("target", target.String()).Msg("Detected deploy family from resource id")
	}
	if family == FamilyStorage {
		return d.DeployStaticSite(ctx, args)
	}
	f, err := d.Family(family)
	if err != nil {
		return nil, err
	}
	return d.DeployZip(ctx, f, args)
}

type resolvedArgs struct {
	workingDir  string
	artifactDir string
	ignoreFile  string
	cachePath   string
}

func (d *Driver) resolve(args Args) (resolvedArgs, error) {
	if args.ResourceID == "" {
		return resolvedArgs{}, deployerr.MissingArgument("resourceId")
	}
	if args.WorkingDirectory == "" {
		return resolvedArgs{}, deployerr.MissingArgument("workingDirectory")
	}
	if args.ArtifactFolder == "" {
		return resolvedArgs{}, deployerr.MissingArgument("artifactFolder")
	}
	if !isDir(args.WorkingDirectory) {
		return resolvedArgs{}, deployerr.FolderNotExists(args.WorkingDirectory)
	}

	r := resolvedArgs{
		workingDir:  args.WorkingDirectory,
		artifactDir: absUnder(args.WorkingDirectory, args.ArtifactFolder),
		cachePath:   filepath.Join(args.WorkingDirectory, d.cfg.TempFolder, d.cfg.CacheFile),
	}
	if args.IgnoreFile != "" {
		r.ignoreFile = absUnder(args.WorkingDirectory, args.IgnoreFile)
	}
	if !isDir(r.artifactDir) {
		return resolvedArgs{}, deployerr.FolderNotExists(r.artifactDir)
	}
	return r, nil
}

// DeployZip packages args.ArtifactFolder and pushes it to a site of the
// given family.
func (d *Driver) DeployZip(ctx context.Context, family Family, args Args) (*Result, error) {
	start := d.now()

	r, err := d.resolve(args)
	if err != nil {
		return nil, err
	}
	target, err := resourceid.ParseAs(resourceid.KindSite, args.ResourceID)
	if err != nil {
		return nil, err
	}
	logger := d.logger.With().
		Str("family", family.Name()).
		Str("site", target.InstanceID).
		Str("resource_group", target.ResourceGroupName).
		Logger()

	release, err := packager.Lock(r.cachePath)
	if err != nil {
		return nil, err
	}
	defer release()

	args.progress(StepPacking)
	rules, err := packager.LoadIgnoreRules(r.ignoreFile, d.cfg.TempFolder, logger)
	if err != nil {
		return nil, err
	}
	artifact, err := d.deps.Packager.Package(ctx, r.artifactDir, r.cachePath, rules)
	if err != nil {
		return nil, err
	}

	result := &Result{Family: family.Name(), Target: target, ArtifactPath: artifact.Path, Outputs: map[string]string{}}
	if args.DryRun {
		result.DryRun = true
		result.Duration = d.now().Sub(start)
		logger.Info().Str("artifact", artifact.Path).Msg("Dry run finished, artifact left in place")
		return result, nil
	}

	args.progress(StepCredentials)
	auth, err := d.authFor(ctx, target)
	if err != nil {
		return nil, err
	}

	args.progress(StepUploading)
	location, err := d.deps.ZipDeploy.Upload(ctx, family.Endpoint(target), artifact, auth)
	if err != nil {
		return nil, err
	}

	args.progress(StepPolling)
	status, err := d.deps.ZipDeploy.Poll(ctx, location, auth)
	if err != nil {
		return nil, err
	}
	result.Deployment = status

	args.progress(StepPostAction)
	runPostAction(ctx, family, target, logger)

	args.progress(StepCleaning)
	d.deps.Packager.Cleanup(artifact.Path)
	result.ArtifactPath = ""
	result.Duration = d.now().Sub(start)

	logger.Info().
		Str("deployment_id", status.ID).
		Str("status", status.Status.String()).
		Dur("duration", result.Duration).
		Msg("Zip deploy completed")

	return result, nil
}

func absUnder(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
