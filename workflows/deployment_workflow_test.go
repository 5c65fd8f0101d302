package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/OfficeDev/teams-toolkit-sub012/activities"
	"github.com/OfficeDev/teams-toolkit-sub012/arm"
)

const (
	testSubscription = "e24d88be-bbbb-1234-ba25-aa11aa11aa11"
	testSiteID       = "/subscriptions/" + testSubscription + "/resourceGroups/rg/providers/Microsoft.Web/sites/my-site"
)

type workflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env *testsuite.TestWorkflowEnvironment
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(workflowSuite))
}

func (s *workflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterActivity(&activities.DeployActivities{})
	s.env.RegisterActivity(&activities.GitHubActivities{})
}

func (s *workflowSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func stateIs(state string) interface{} {
	return mock.MatchedBy(func(in activities.UpdateDeploymentStatusInput) bool { return in.State == state })
}

func (s *workflowSuite) Test_ComputeDeploy_WithoutGitHub() {
	var a *activities.DeployActivities
	s.env.OnActivity(a.DeployCompute, mock.Anything, mock.Anything).
		Return(&activities.DeployComputeResult{Family: "webapp", SiteName: "my-site", DeploymentID: "dep-1"}, nil).Once()

	s.env.ExecuteWorkflow(ComputeDeployWorkflow, ComputeDeployWorkflowInput{
		Deploy: activities.DeployComputeInput{Family: "webapp", ResourceID: testSiteID, ArtifactFolder: "dist"},
	})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result ComputeDeployWorkflowResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Require().NotNil(result.Deploy)
	s.Equal("dep-1", result.Deploy.DeploymentID)
	s.Zero(result.StatusUpdates)
}

func (s *workflowSuite) Test_ComputeDeploy_ReportsToGitHub() {
	var a *activities.DeployActivities
	var gh *activities.GitHubActivities

	s.env.OnActivity(gh.CreateGitHubDeployment, mock.Anything, mock.MatchedBy(func(in activities.CreateDeploymentInput) bool {
		return in.Family == "functionapp" && in.ResourceID == testSiteID && !in.DryRun
	})).Return(&activities.CreateDeploymentResult{DeploymentID: 99}, nil).Once()
	s.env.OnActivity(gh.UpdateGitHubDeploymentStatus, mock.Anything, stateIs("in_progress")).Return(nil).Once()
	s.env.OnActivity(a.DeployCompute, mock.Anything, mock.Anything).
		Return(&activities.DeployComputeResult{Family: "functionapp", SiteName: "my-func", LogURL: "https://scm/log"}, nil).Once()
	s.env.OnActivity(gh.UpdateGitHubDeploymentStatus, mock.Anything, mock.MatchedBy(func(in activities.UpdateDeploymentStatusInput) bool {
		return in.State == "success" && in.DeploymentID == 99 && in.LogURL == "https://scm/log" && in.EnvironmentURL == "https://my-func.azurewebsites.net"
	})).Return(nil).Once()

	s.env.ExecuteWorkflow(ComputeDeployWorkflow, ComputeDeployWorkflowInput{
		Deploy: activities.DeployComputeInput{Family: "functionapp", ResourceID: testSiteID},
		GitHub: &GitHubReference{
			Owner:          "contoso",
			Repo:           "app",
			Ref:            "main",
			Environment:    "staging",
			EnvironmentURL: "https://my-func.azurewebsites.net",
		},
	})

	s.NoError(s.env.GetWorkflowError())
	var result ComputeDeployWorkflowResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(int64(99), result.GitHubDeploymentID)
	s.Equal(2, result.StatusUpdates)
}

func (s *workflowSuite) Test_ComputeDeploy_FailureIsReported() {
	var a *activities.DeployActivities
	var gh *activities.GitHubActivities

	s.env.OnActivity(gh.CreateGitHubDeployment, mock.Anything, mock.Anything).
		Return(&activities.CreateDeploymentResult{DeploymentID: 7}, nil).Once()
	s.env.OnActivity(gh.UpdateGitHubDeploymentStatus, mock.Anything, stateIs("in_progress")).Return(nil).Once()
	s.env.OnActivity(a.DeployCompute, mock.Anything, mock.Anything).
		Return(nil, temporal.NewNonRetryableApplicationError("artifact folder is empty", "EmptyArtifactError", nil)).Once()
	s.env.OnActivity(gh.UpdateGitHubDeploymentStatus, mock.Anything, stateIs("failure")).Return(nil).Once()

	s.env.ExecuteWorkflow(ComputeDeployWorkflow, ComputeDeployWorkflowInput{
		Deploy: activities.DeployComputeInput{Family: "webapp", ResourceID: testSiteID},
		GitHub: &GitHubReference{Owner: "contoso", Repo: "app", Ref: "main", Environment: "staging"},
	})

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().True(errors.As(err, &appErr))
	s.Equal("EmptyArtifactError", appErr.Type())
}

func (s *workflowSuite) Test_ComputeDeploy_GitHubOutageDoesNotFailDeploy() {
	var a *activities.DeployActivities
	var gh *activities.GitHubActivities

	s.env.OnActivity(gh.CreateGitHubDeployment, mock.Anything, mock.Anything).
		Return(nil, temporal.NewNonRetryableApplicationError("bad credentials", "AuthenticationError", nil)).Once()
	s.env.OnActivity(a.DeployCompute, mock.Anything, mock.Anything).
		Return(&activities.DeployComputeResult{Family: "webapp", SiteName: "my-site"}, nil).Once()

	s.env.ExecuteWorkflow(ComputeDeployWorkflow, ComputeDeployWorkflowInput{
		Deploy: activities.DeployComputeInput{Family: "webapp", ResourceID: testSiteID},
		GitHub: &GitHubReference{Owner: "contoso", Repo: "app", Ref: "main", Environment: "staging"},
	})

	s.NoError(s.env.GetWorkflowError())
	var result ComputeDeployWorkflowResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Zero(result.GitHubDeploymentID)
	s.Zero(result.StatusUpdates)
}

func (s *workflowSuite) Test_TemplateBatch_IndependentOutcomes() {
	var a *activities.DeployActivities
	s.env.OnActivity(a.DeployTemplate, mock.Anything, mock.MatchedBy(func(in activities.DeployTemplateInput) bool {
		return in.Template.DeploymentName == "network"
	})).Return(&activities.DeployTemplateResult{DeploymentName: "network", Outputs: map[string]string{"VNET__ID": "vnet-1"}}, nil).Once()
	s.env.OnActivity(a.DeployTemplate, mock.Anything, mock.MatchedBy(func(in activities.DeployTemplateInput) bool {
		return in.Template.DeploymentName == "app"
	})).Return(nil, temporal.NewNonRetryableApplicationError("failed to deploy web module", "DeployArmError", nil)).Once()

	s.env.ExecuteWorkflow(TemplateBatchWorkflow, TemplateBatchWorkflowInput{
		SubscriptionID: testSubscription,
		ResourceGroup:  "rg",
		Templates: []arm.Template{
			{Path: "infra/network.bicep", DeploymentName: "network"},
			{Path: "infra/app.json", Parameters: "infra/app.parameters.json", DeploymentName: "app"},
		},
	})

	s.NoError(s.env.GetWorkflowError())
	var result TemplateBatchWorkflowResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Require().Len(result.Outcomes, 2)
	s.Equal(1, result.Failed)

	s.Equal("network", result.Outcomes[0].DeploymentName)
	s.Equal(map[string]string{"VNET__ID": "vnet-1"}, result.Outcomes[0].Outputs)
	s.Empty(result.Outcomes[0].Error)

	s.Equal("app", result.Outcomes[1].DeploymentName)
	s.Equal("DeployArmError", result.Outcomes[1].ErrorType)
	s.Contains(result.Outcomes[1].Error, "failed to deploy web module")
}

func (s *workflowSuite) Test_TemplateBatch_InvalidBatchDeploysNothing() {
	s.env.ExecuteWorkflow(TemplateBatchWorkflow, TemplateBatchWorkflowInput{
		SubscriptionID: "not-a-subscription",
		ResourceGroup:  "rg",
		Templates:      []arm.Template{{Path: "main.txt", DeploymentName: "main"}},
	})

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().True(errors.As(err, &appErr))
	s.Equal("ValidationError", appErr.Type())
}
