// ABOUTME: Workspace descriptor types as returned by the Coder REST API
// ABOUTME: Only the fields needed to locate and reconcile agent-server apps are decoded

package coder

// WorkspaceStatus is the status of a workspace's latest build.
type WorkspaceStatus string

const (
	StatusPending   WorkspaceStatus = "pending"
	StatusStarting  WorkspaceStatus = "starting"
	StatusRunning   WorkspaceStatus = "running"
	StatusStopping  WorkspaceStatus = "stopping"
	StatusStopped   WorkspaceStatus = "stopped"
	StatusFailed    WorkspaceStatus = "failed"
	StatusCanceling WorkspaceStatus = "canceling"
	StatusCanceled  WorkspaceStatus = "canceled"
	StatusDeleting  WorkspaceStatus = "deleting"
	StatusDeleted   WorkspaceStatus = "deleted"
)

// Workspace is a remote, user-owned compute environment.
type Workspace struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	OwnerName   string         `json:"owner_name"`
	LatestBuild WorkspaceBuild `json:"latest_build"`
}

// Running reports whether the latest build is running.
func (w *Workspace) Running() bool {
	return w.LatestBuild.Status == StatusRunning
}

// WorkspaceBuild is the latest build of a workspace.
type WorkspaceBuild struct {
	ID        string              `json:"id"`
	Status    WorkspaceStatus     `json:"status"`
	Resources []WorkspaceResource `json:"resources"`
}

// WorkspaceResource is a provisioned resource (container, VM) of a build.
type WorkspaceResource struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Type   string           `json:"type"`
	Agents []WorkspaceAgent `json:"agents"`
}

// WorkspaceAgent is a process inside a workspace exposing apps.
type WorkspaceAgent struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Apps   []WorkspaceApp `json:"apps"`
}

// WorkspaceApp is a named network endpoint on an agent.
type WorkspaceApp struct {
	ID            string `json:"id"`
	Slug          string `json:"slug"`
	DisplayName   string `json:"display_name"`
	URL           string `json:"url"`
	Subdomain     bool   `json:"subdomain"`
	SubdomainName string `json:"subdomain_name"`
	Health        string `json:"health"`
}

// User is the authenticated Coder user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
