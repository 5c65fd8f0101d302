// Package deployerr defines the error taxonomy shared by the deploy drivers,
// the template orchestrator and the Temporal activities that run them.
//
// Every error type carries enough context to be reported on its own and
// classifies itself as user-caused or system-caused through IsUserError.
package deployerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyArtifact is returned when no file survives the ignore rules.
	ErrEmptyArtifact = errors.New("no files to deploy after applying ignore rules")

	// ErrCacheFileLocked is returned when the artifact cache file is in use
	// by another process or by a concurrent deploy of the same target.
	ErrCacheFileLocked = errors.New("artifact cache file is locked by another deployment")

	// ErrAADOnly is returned when bearer auth is unavailable and publishing
	// credentials are forbidden by TEAMSFX_AAD_DEPLOY_ONLY.
	ErrAADOnly = errors.New("bearer token unavailable and basic auth fallback is disabled")
)

// PrerequisiteError reports a missing argument or an unusable local path.
type PrerequisiteError struct {
	Argument string
	Path     string
	Reason   string
}

func (e *PrerequisiteError) Error() string {
	switch {
	case e.Argument != "":
		return fmt.Sprintf("missing required argument %q", e.Argument)
	case e.Reason != "":
		return fmt.Sprintf("invalid path %s: %s", e.Path, e.Reason)
	default:
		return fmt.Sprintf("folder %s does not exist", e.Path)
	}
}

// MissingArgument returns a PrerequisiteError for an absent argument.
func MissingArgument(name string) error {
	return &PrerequisiteError{Argument: name}
}

// FolderNotExists returns a PrerequisiteError for a missing directory.
func FolderNotExists(path string) error {
	return &PrerequisiteError{Path: path}
}

// InvalidResourceIDError is returned when a resource identifier does not
// match the pattern of the requested target family.
type InvalidResourceIDError struct {
	ID      string
	Pattern string
}

func (e *InvalidResourceIDError) Error() string {
	return fmt.Sprintf("resource id %q does not match %s", e.ID, e.Pattern)
}

// ExternalAPICallError wraps a failed call to a remote API. Responses in the
// 4xx range are attributed to the user, everything else to the remote side.
type ExternalAPICallError struct {
	Op         string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ExternalAPICallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Op)
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " (%s)", e.Endpoint)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Remote() {
		b.WriteString("; the remote service may be unavailable, retry later")
	}
	return b.String()
}

func (e *ExternalAPICallError) Unwrap() error { return e.Err }

// UserCaused reports whether the remote rejected the request as invalid.
func (e *ExternalAPICallError) UserCaused() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Remote reports whether the failure originated on the remote side.
func (e *ExternalAPICallError) Remote() bool {
	return e.StatusCode >= 500
}

// TimeoutError is returned when a polling loop runs out of attempts.
type TimeoutError struct {
	Op       string
	Location string
	Attempts int
	Waited   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %d checks (%s) at %s", e.Op, e.Attempts, e.Waited, e.Location)
}

// CompileError is returned when a template compiler exits unsuccessfully.
type CompileError struct {
	Path   string
	Output string
	Err    error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("failed to compile %s", e.Path)
	if e.Output != "" {
		msg += ": " + strings.TrimSpace(e.Output)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Err }

// ParameterError is returned when a template or parameter file cannot be
// read, expanded or parsed.
type ParameterError struct {
	Path    string
	Missing []string
	Err     error
}

func (e *ParameterError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("parameter file %s references unset environment variables: %s", e.Path, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *ParameterError) Unwrap() error { return e.Err }

// ValidationError aggregates every violation found in a template batch.
type ValidationError struct {
	Violations []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return "invalid deployment request: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error { return e.Violations }

// TemplateInvalidError is returned when the provider rejects a template
// before deploying anything.
type TemplateInvalidError struct {
	DeploymentName string
	Code           string
	Message        string
	Err            error
}

func (e *TemplateInvalidError) Error() string {
	return fmt.Sprintf("template for deployment %s is invalid: %s: %s", e.DeploymentName, e.Code, e.Message)
}

func (e *TemplateInvalidError) Unwrap() error { return e.Err }

// ResourceGroupNotFoundError is returned when the target resource group does
// not exist in the subscription.
type ResourceGroupNotFoundError struct {
	SubscriptionID string
	ResourceGroup  string
	Err            error
}

func (e *ResourceGroupNotFoundError) Error() string {
	return fmt.Sprintf("resource group %s was not found in subscription %s", e.ResourceGroup, e.SubscriptionID)
}

func (e *ResourceGroupNotFoundError) Unwrap() error { return e.Err }

// DeployArmError carries the failure of a template deployment together with
// the resolved diagnostic tree, when one could be built.
type DeployArmError struct {
	DeploymentName string
	ResourceGroup  string
	// Detail is the JSON encoding of the diagnostic tree.
	Detail string
	// Notification is a short, human readable summary of failed modules.
	Notification string
	Err          error
}

func (e *DeployArmError) Error() string {
	msg := fmt.Sprintf("failed to deploy %s in resource group %s", e.DeploymentName, e.ResourceGroup)
	if e.Notification != "" {
		msg += ": " + e.Notification
	}
	if e.Detail != "" {
		msg += "\n" + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeployArmError) Unwrap() error { return e.Err }

// ResolveError is returned when the deployment failure could not be
// diagnosed because the follow-up queries themselves failed.
type ResolveError struct {
	DeploymentName string
	Cause          error
	Err            error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("failed to get error details of deployment %s: %v (original error: %v)", e.DeploymentName, e.Err, e.Cause)
}

func (e *ResolveError) Unwrap() []error { return []error{e.Cause, e.Err} }

// IsUserError reports whether err stems from user input or user-owned
// resources rather than from the remote platform.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyArtifact) || errors.Is(err, ErrAADOnly) {
		return true
	}

	var (
		prereq   *PrerequisiteError
		badID    *InvalidResourceIDError
		compile  *CompileError
		param    *ParameterError
		invalid  *ValidationError
		template *TemplateInvalidError
		rg       *ResourceGroupNotFoundError
		armErr   *DeployArmError
		api      *ExternalAPICallError
	)
	switch {
	case errors.As(err, &prereq), errors.As(err, &badID), errors.As(err, &compile),
		errors.As(err, &param), errors.As(err, &invalid), errors.As(err, &template),
		errors.As(err, &rg), errors.As(err, &armErr):
		return true
	case errors.As(err, &api):
		return api.UserCaused()
	}
	return false
}

// Kind returns a stable, type-like name for err. It is used as the Temporal
// application error type so retry policies can match on it.
func Kind(err error) string {
	var (
		prereq   *PrerequisiteError
		badID    *InvalidResourceIDError
		api      *ExternalAPICallError
		timeout  *TimeoutError
		compile  *CompileError
		param    *ParameterError
		invalid  *ValidationError
		template *TemplateInvalidError
		rg       *ResourceGroupNotFoundError
		armErr   *DeployArmError
		resolve  *ResolveError
	)
	switch {
	case errors.Is(err, ErrEmptyArtifact):
		return "EmptyArtifactError"
	case errors.Is(err, ErrCacheFileLocked):
		return "CacheFileLockedError"
	case errors.Is(err, ErrAADOnly):
		return "AADOnlyError"
	case errors.As(err, &invalid):
		return "ValidationError"
	case errors.As(err, &prereq):
		return "PrerequisiteError"
	case errors.As(err, &badID):
		return "InvalidResourceIDError"
	case errors.As(err, &compile):
		return "CompileError"
	case errors.As(err, &param):
		return "ParameterError"
	case errors.As(err, &template):
		return "TemplateInvalidError"
	case errors.As(err, &rg):
		return "ResourceGroupNotFoundError"
	case errors.As(err, &resolve):
		return "ResolveError"
	case errors.As(err, &armErr):
		return "DeployArmError"
	case errors.As(err, &timeout):
		return "TimeoutError"
	case errors.As(err, &api):
		if api.UserCaused() {
			return "ExternalAPIUserError"
		}
		return "ExternalAPICallError"
	}
	return "UnknownError"
}
