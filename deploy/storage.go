package deploy

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
	"github.com/OfficeDev/teams-toolkit-sub012/packager"
	"github.com/OfficeDev/teams-toolkit-sub012/resourceid"
)

const uploadConcurrency = 8

// BlobItem is an existing blob in the static site container.
type BlobItem struct {
	Name string
	Size int64
}

// BlobStore is the static site container of one storage account.
type BlobStore interface {
	EnsureContainer(ctx context.Context) error
	List(ctx context.Context) ([]BlobItem, error)
	Delete(ctx context.Context, name string) error
	Upload(ctx context.Context, name, path string) error
}

// BlobStoreFactory opens the static site container of a storage account.
type BlobStoreFactory interface {
	ForAccount(ctx context.Context, target resourceid.Target) (BlobStore, error)
}

// DeployStaticSite replaces the content of the static website container of
// a storage account with the files of args.ArtifactFolder.
func (d *Driver) DeployStaticSite(ctx context.Context, args Args) (*Result, error) {
	start := d.now()

	r, err := d.resolve(args)
	if err != nil {
		return nil, err
	}
	target, err := resourceid.ParseAs(resourceid.KindStorageAccount, args.ResourceID)
	if err != nil {
		return nil, err
	}
	logger := d.logger.With().
		Str("family", FamilyStorage).
		Str("account", target.InstanceID).
		Logger()

	args.progress(StepPacking)
	rules, err := packager.LoadIgnoreRules(r.ignoreFile, d.cfg.TempFolder, logger)
	if err != nil {
		return nil, err
	}
	files, err := d.deps.Packager.Collect(ctx, r.artifactDir, rules)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, deployerr.ErrEmptyArtifact
	}

	result := &Result{Family: FamilyStorage, Target: target, Outputs: map[string]string{}}
	if args.DryRun {
		result.DryRun = true
		result.Uploaded = len(files)
		result.Duration = d.now().Sub(start)
		return result, nil
	}

	args.progress(StepCredentials)
	if d.deps.Blobs == nil {
		return nil, fmt.Errorf("no blob store configured")
	}
	store, err := d.deps.Blobs.ForAccount(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage account %s: %w", target.InstanceID, err)
	}
	if err := store.EnsureContainer(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare static site container: %w", err)
	}

	args.progress(StepCleaning)
	existing, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list static site blobs: %w", err)
	}
	for _, item := range existing {
		// Zero-length blobs are directory placeholders.
		if item.Size == 0 {
			continue
		}
		if err := store.Delete(ctx, item.Name); err != nil {
			return nil, fmt.Errorf("failed to delete blob %q: %w", item.Name, err)
		}
		result.Deleted++
	}

	args.progress(StepSyncing)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for _, f := range files {
		g.Go(func() error {
			if err := store.Upload(gctx, f.Rel, f.Abs); err != nil {
				return fmt.Errorf("failed to upload blob %q: %w", f.Rel, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.Uploaded = len(files)
	result.Duration = d.now().Sub(start)

	logger.Info().
		Int("deleted", result.Deleted).
		Int("uploaded", result.Uploaded).
		Dur("duration", result.Duration).
		Msg("Static site deploy completed")

	return result, nil
}
