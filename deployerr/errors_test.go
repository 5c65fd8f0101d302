package deployerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"empty artifact", fmt.Errorf("package: %w", ErrEmptyArtifact), true},
		{"locked cache", ErrCacheFileLocked, false},
		{"missing argument", MissingArgument("resourceId"), true},
		{"bad resource id", &InvalidResourceIDError{ID: "x"}, true},
		{"upload 400", &ExternalAPICallError{Op: "zip deploy", StatusCode: 400}, true},
		{"upload 503", &ExternalAPICallError{Op: "zip deploy", StatusCode: 503}, false},
		{"transport failure", &ExternalAPICallError{Op: "zip deploy", Err: errors.New("reset")}, false},
		{"timeout", &TimeoutError{Op: "poll"}, false},
		{"compile", &CompileError{Path: "main.bicep"}, true},
		{"wrapped validation", fmt.Errorf("batch: %w", &ValidationError{Violations: []error{errors.New("x")}}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUserError(tt.err))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "EmptyArtifactError", Kind(ErrEmptyArtifact))
	assert.Equal(t, "ExternalAPIUserError", Kind(&ExternalAPICallError{StatusCode: 404}))
	assert.Equal(t, "ExternalAPICallError", Kind(&ExternalAPICallError{StatusCode: 500}))
	assert.Equal(t, "TimeoutError", Kind(fmt.Errorf("poll: %w", &TimeoutError{})))
	assert.Equal(t, "ResolveError", Kind(&ResolveError{Cause: errors.New("a"), Err: errors.New("b")}))
	assert.Equal(t, "UnknownError", Kind(errors.New("boom")))
}

func TestExternalAPICallErrorMessage(t *testing.T) {
	err := &ExternalAPICallError{Op: "zip deploy", Endpoint: "https://app.scm", StatusCode: 502, Body: "bad gateway"}
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "retry later")

	userErr := &ExternalAPICallError{Op: "zip deploy", StatusCode: 401}
	assert.NotContains(t, userErr.Error(), "retry later")
}

func TestValidationErrorUnwrap(t *testing.T) {
	first := errors.New("subscription id is not a UUID")
	second := errors.New("resource group name is empty")
	err := &ValidationError{Violations: []error{first, second}}

	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Contains(t, err.Error(), "subscription id is not a UUID; resource group name is empty")
}
