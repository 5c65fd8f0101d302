package zipdeploy

import "fmt"

// DeployStatus is the build state reported by the SCM site.
type DeployStatus int

const (
	StatusPending DeployStatus = iota
	StatusBuilding
	StatusDeploying
	StatusFailed
	StatusSuccess
)

func (s DeployStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusBuilding:
		return "Building"
	case StatusDeploying:
		return "Deploying"
	case StatusFailed:
		return "Failed"
	case StatusSuccess:
		return "Success"
	default:
		return fmt.Sprintf("DeployStatus(%d)", int(s))
	}
}

// DeployResult is the deployment record returned by the status endpoint.
type DeployResult struct {
	ID           string       `json:"id"`
	Status       DeployStatus `json:"status"`
	StatusText   string       `json:"status_text,omitempty"`
	Message      string       `json:"message"`
	ReceivedTime string       `json:"received_time"`
	StartTime    string       `json:"start_time"`
	EndTime      string       `json:"end_time"`
	Complete     bool         `json:"complete"`
	Active       bool         `json:"active"`
	IsReadonly   bool         `json:"is_readonly"`
	SiteName     string       `json:"site_name"`
	LogURL       string       `json:"log_url,omitempty"`
}
