package arm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one template of a batch.
type Result struct {
	DeploymentName string
	Outputs        map[string]string
	Err            error
}

// BatchResult keeps per-template results in input order.
type BatchResult struct {
	Results []Result
}

// Outputs returns the outputs of successful templates, in input order.
func (b *BatchResult) Outputs() []map[string]string {
	var out []map[string]string
	for _, r := range b.Results {
		if r.Err == nil {
			out = append(out, r.Outputs)
		}
	}
	return out
}

// Err combines the failures of the batch, or nil.
func (b *BatchResult) Err() error {
	var errs error
	for _, r := range b.Results {
		if r.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deployment %s: %w", r.DeploymentName, r.Err))
		}
	}
	return errs
}

// Options tune a Deployer.
type Options struct {
	BicepCommand        string
	ProgressInterval    time.Duration
	ProgressMaxFailures int
	ResolveMaxDepth     int
	ResolveMaxNodes     int
}

// Deployer runs template batches against one subscription at a time.
type Deployer struct {
	managers  ManagerFactory
	compiler  *Compiler
	resolver  *Resolver
	opts      Options
	logger    zerolog.Logger
	lookupEnv func(string) (string, bool)
	now       func() time.Time
}

// NewDeployer creates a Deployer.
func NewDeployer(managers ManagerFactory, opts Options, logger zerolog.Logger) *Deployer {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 10 * time.Second
	}
	if opts.ProgressMaxFailures <= 0 {
		opts.ProgressMaxFailures = 4
	}
	return &Deployer{
		managers:  managers,
		compiler:  NewCompiler(opts.BicepCommand),
		resolver:  NewResolver(managers, opts.ResolveMaxDepth, opts.ResolveMaxNodes, logger),
		opts:      opts,
		logger:    logger,
		lookupEnv: os.LookupEnv,
		now:       time.Now,
	}
}

// DeployBatch validates the whole batch, then deploys every template
// concurrently. A validation failure aborts before any deployment; otherwise
// each template succeeds or fails independently and the returned error
// combines the failures.
func (d *Deployer) DeployBatch(ctx context.Context, templates []Template, subscriptionID, resourceGroup string) (*BatchResult, error) {
	if err := ValidateBatch(templates, subscriptionID, resourceGroup); err != nil {
		return nil, err
	}

	manager, err := d.managers(subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployments client: %w", err)
	}

	batch := &BatchResult{Results: make([]Result, len(templates))}
	var g errgroup.Group
	for i, t := range templates {
		g.Go(func() error {
			outputs, err := d.deploy(ctx, manager, t, subscriptionID, resourceGroup)
			batch.Results[i] = Result{DeploymentName: t.DeploymentName, Outputs: outputs, Err: err}
			return nil
		})
	}
	g.Wait()

	return batch, batch.Err()
}

// DeployTemplate validates and deploys a single template.
func (d *Deployer) DeployTemplate(ctx context.Context, t Template, subscriptionID, resourceGroup string) (map[string]string, error) {
	if err := ValidateBatch([]Template{t}, subscriptionID, resourceGroup); err != nil {
		return nil, err
	}
	manager, err := d.managers(subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployments client: %w", err)
	}
	return d.deploy(ctx, manager, t, subscriptionID, resourceGroup)
}

func (d *Deployer) deploy(ctx context.Context, manager ResourceManager, t Template, subscriptionID, resourceGroup string) (map[string]string, error) {
	logger := d.logger.With().
		Str("deployment", t.DeploymentName).
		Str("resource_group", resourceGroup).
		Logger()

	template, err := d.loadTemplate(ctx, t.Path)
	if err != nil {
		return nil, err
	}
	parameters, err := d.loadParameters(t.Parameters)
	if err != nil {
		return nil, err
	}

	start := d.now()
	logger.Info().Str("template", t.Path).Msg("Starting template deployment")

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		d.watchProgress(watchCtx, manager, resourceGroup, t.DeploymentName, start, logger)
	}()

	outputs, err := manager.CreateOrUpdate(ctx, resourceGroup, t.DeploymentName, template, parameters)
	stopWatch()
	<-watchDone

	if err != nil {
		logger.Error().Err(err).Msg("Template deployment failed")
		return nil, d.resolver.Resolve(ctx, err, DeployContext{
			SubscriptionID: subscriptionID,
			ResourceGroup:  resourceGroup,
			DeploymentName: t.DeploymentName,
			StartTime:      start,
			Manager:        manager,
		})
	}

	flat := FlattenOutputs(outputs)
	logger.Info().
		Int("outputs", len(flat)).
		Dur("duration", d.now().Sub(start)).
		Msg("Template deployment succeeded")
	return flat, nil
}
