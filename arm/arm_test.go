package arm

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

const (
	testSubscription = "e24d88be-bbbb-1234-ba25-aa11aa11aa11"
	testGroup        = "hoho-rg"
)

type fakeManager struct {
	mu          sync.Mutex
	deployments map[string]*Deployment
	getErrs     map[string]error
	operations  map[string][]Operation
	createErrs  map[string]error
	outputs     map[string]map[string]any
	created     map[string]map[string]any
	getCalls    int
	listCalls   int
	listErr     error
	createDelay time.Duration
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		deployments: map[string]*Deployment{},
		getErrs:     map[string]error{},
		operations:  map[string][]Operation{},
		createErrs:  map[string]error{},
		outputs:     map[string]map[string]any{},
		created:     map[string]map[string]any{},
	}
}

func key(rg, name string) string { return rg + "/" + name }

func (f *fakeManager) CreateOrUpdate(ctx context.Context, rg, name string, template, parameters map[string]any) (map[string]any, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[name] = parameters
	if err := f.createErrs[name]; err != nil {
		return nil, err
	}
	return f.outputs[name], nil
}

func (f *fakeManager) Get(ctx context.Context, rg, name string) (*Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if err := f.getErrs[key(rg, name)]; err != nil {
		return nil, err
	}
	d, ok := f.deployments[key(rg, name)]
	if !ok {
		return nil, &ProviderError{StatusCode: 404, Detail: ErrorDetail{Code: CodeDeploymentNotFound}}
	}
	return d, nil
}

func (f *fakeManager) ListOperations(ctx context.Context, rg, name string) ([]Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.operations[key(rg, name)], nil
}

func factoryFor(m ResourceManager) ManagerFactory {
	return func(string) (ResourceManager, error) { return m, nil }
}

func writeJSON(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestValidateBatchReportsAllViolations(t *testing.T) {
	err := ValidateBatch([]Template{
		{Path: "main.txt", DeploymentName: ""},
		{Path: "main.bicep", Parameters: "params.yaml", DeploymentName: "ok"},
	}, "not-a-uuid", "")

	var invalid *deployerr.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Len(t, invalid.Violations, 5)
}

func TestValidateBatchAcceptsGoodInput(t *testing.T) {
	err := ValidateBatch([]Template{
		{Path: "infra/main.BICEP", Parameters: "infra/main.parameters.json", DeploymentName: "main"},
		{Path: "infra/extra.json", DeploymentName: "extra"},
	}, testSubscription, testGroup)
	assert.NoError(t, err)
}

func TestFlattenOutputs(t *testing.T) {
	outputs := map[string]any{
		"tabOutput": map[string]any{
			"type": "Object",
			"value": map[string]any{
				"keyA": "valueA",
				"keyB": float64(1),
				"nested": map[string]any{
					"deep": true,
				},
				"list": []any{"a", "b"},
			},
		},
		"endpoint": map[string]any{"type": "String", "value": "https://example.com"},
		"quota":    map[string]any{"type": "Int", "value": float64(1000000)},
		"port":     float64(12345678),
		"ratio":    float64(0.25),
	}

	got := FlattenOutputs(outputs)
	assert.Equal(t, map[string]string{
		"TABOUTPUT__KEYA":         "valueA",
		"TABOUTPUT__KEYB":         "1",
		"TABOUTPUT__NESTED__DEEP": "true",
		"TABOUTPUT__LIST":         `["a","b"]`,
		"ENDPOINT":                "https://example.com",
		"QUOTA":                   "1000000",
		"PORT":                    "12345678",
		"RATIO":                   "0.25",
	}, got)
}

func TestExpandPlaceholders(t *testing.T) {
	env := map[string]string{"APP_NAME": `my "app"`, "REGION": "westus"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	out, err := expandPlaceholders("p.json", `{"name":"${{APP_NAME}}","loc":"${{ REGION }}"}`, lookup)
	require.NoError(t, err)

	var doc map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, `my "app"`, doc["name"])
	assert.Equal(t, "westus", doc["loc"])

	_, err = expandPlaceholders("p.json", `{"a":"${{MISSING_B}}","b":"${{MISSING_A}}"}`, lookup)
	var perr *deployerr.ParameterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{"MISSING_A", "MISSING_B"}, perr.Missing)
}

func TestCompileFailureIsCompileError(t *testing.T) {
	c := NewCompiler("bicep")
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, []string{"build", "main.bicep", "--stdout"}, args)
		return nil, []byte("Error BCP018: expected ="), errors.New("exit status 1")
	}

	_, err := c.Compile(context.Background(), "main.bicep")
	var cerr *deployerr.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Error(), "BCP018")
}

func TestCompileSuccess(t *testing.T) {
	c := NewCompiler("")
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "bicep", name)
		return []byte(`{"$schema":"x","resources":[]}`), nil, nil
	}

	tpl, err := c.Compile(context.Background(), "main.bicep")
	require.NoError(t, err)
	assert.Equal(t, "x", tpl["$schema"])
}

func TestDeployBatchIndependentResults(t *testing.T) {
	dir := t.TempDir()
	tpl := writeJSON(t, dir, "main.json", `{"resources":[]}`)
	goodParams := writeJSON(t, dir, "good.parameters.json", `{"parameters":{"name":{"value":"${{APP_NAME}}"}}}`)
	badParams := writeJSON(t, dir, "bad.parameters.json", `{"parameters": {`)

	m := newFakeManager()
	m.outputs["first"] = map[string]any{"siteName": map[string]any{"type": "String", "value": "app-1"}}

	d := NewDeployer(factoryFor(m), Options{}, zerolog.Nop())
	d.lookupEnv = func(k string) (string, bool) { return "my-app", k == "APP_NAME" }

	batch, err := d.DeployBatch(context.Background(), []Template{
		{Path: tpl, Parameters: goodParams, DeploymentName: "first"},
		{Path: tpl, Parameters: badParams, DeploymentName: "second"},
	}, testSubscription, testGroup)
	require.Error(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Results, 2)

	assert.NoError(t, batch.Results[0].Err)
	assert.Equal(t, map[string]string{"SITENAME": "app-1"}, batch.Results[0].Outputs)
	assert.Equal(t, map[string]any{"name": map[string]any{"value": "my-app"}}, m.created["first"])

	var perr *deployerr.ParameterError
	assert.ErrorAs(t, batch.Results[1].Err, &perr)
	assert.Len(t, batch.Outputs(), 1)
}

func TestDeployBatchValidationAbortsEverything(t *testing.T) {
	m := newFakeManager()
	d := NewDeployer(factoryFor(m), Options{}, zerolog.Nop())

	batch, err := d.DeployBatch(context.Background(), []Template{{Path: "main.json", DeploymentName: "a"}}, "bad", testGroup)
	var invalid *deployerr.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Nil(t, batch)
	assert.Empty(t, m.created)
}

func TestDeployTemplateResolvesFailure(t *testing.T) {
	dir := t.TempDir()
	tpl := writeJSON(t, dir, "main.json", `{"resources":[]}`)

	m := newFakeManager()
	m.createErrs["main"] = &ProviderError{StatusCode: 404, Detail: ErrorDetail{Code: CodeResourceGroupNotFound, Message: "Resource group 'hoho-rg' could not be found."}}
	d := NewDeployer(factoryFor(m), Options{}, zerolog.Nop())

	_, err := d.DeployTemplate(context.Background(), Template{Path: tpl, DeploymentName: "main"}, testSubscription, testGroup)
	var rgErr *deployerr.ResourceGroupNotFoundError
	require.ErrorAs(t, err, &rgErr)
	assert.Equal(t, testGroup, rgErr.ResourceGroup)
	assert.Zero(t, m.getCalls)
}

func TestWatchProgressStopsAfterRepeatedFailures(t *testing.T) {
	dir := t.TempDir()
	tpl := writeJSON(t, dir, "main.json", `{"resources":[]}`)

	m := newFakeManager()
	m.listErr = errors.New("throttled")
	m.createDelay = 200 * time.Millisecond
	d := NewDeployer(factoryFor(m), Options{ProgressInterval: time.Millisecond, ProgressMaxFailures: 4}, zerolog.Nop())

	_, err := d.DeployTemplate(context.Background(), Template{Path: tpl, DeploymentName: "main"}, testSubscription, testGroup)
	require.NoError(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 4, m.listCalls)
}

func TestErrorDetailUnmarshal(t *testing.T) {
	var wrapped ErrorDetail
	require.NoError(t, json.Unmarshal([]byte(`{"code":"InvalidTemplateDeployment","message":"outer","details":{"error":{"code":"ValidationForResourceFailed","message":"inner"}}}`), &wrapped))
	require.NotNil(t, wrapped.Inner)
	assert.Equal(t, "ValidationForResourceFailed", wrapped.Inner.Code)

	var list ErrorDetail
	require.NoError(t, json.Unmarshal([]byte(`{"code":"A","message":"m","details":[{"code":"B","message":"n"}]}`), &list))
	require.Len(t, list.Details, 1)
	assert.Equal(t, "B", list.Details[0].Code)
}
