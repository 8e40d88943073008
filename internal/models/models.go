// Package models defines the persisted entities of the workspace orchestrator.
package models

import "time"

// IssueStatus is the lifecycle status of an Issue.
type IssueStatus string

const (
	IssueStatusPending   IssueStatus = "pending"
	IssueStatusExtracting IssueStatus = "extracting"
	IssueStatusExtracted IssueStatus = "extracted"
	IssueStatusOpen      IssueStatus = "open"
	IssueStatusFixing    IssueStatus = "fixing"
	IssueStatusPROpen    IssueStatus = "pr_open"
	IssueStatusFixed     IssueStatus = "fixed"
	IssueStatusError     IssueStatus = "error"
)

// WorkspaceStatus is the lifecycle status of a Workspace.
type WorkspaceStatus string

const (
	WorkspaceStatusPending          WorkspaceStatus = "pending"
	WorkspaceStatusBuilding         WorkspaceStatus = "building"
	WorkspaceStatusRunning          WorkspaceStatus = "running"
	WorkspaceStatusCompleted        WorkspaceStatus = "completed"
	WorkspaceStatusBuildFailed      WorkspaceStatus = "build_failed"
	WorkspaceStatusContainerCrashed WorkspaceStatus = "container_crashed"
	WorkspaceStatusTimeout          WorkspaceStatus = "timeout"
	WorkspaceStatusDestroyed        WorkspaceStatus = "destroyed"
	WorkspaceStatusCancelled        WorkspaceStatus = "cancelled"
)

// Terminal reports whether a status never transitions further.
func (s WorkspaceStatus) Terminal() bool {
	switch s {
	case WorkspaceStatusCompleted, WorkspaceStatusBuildFailed, WorkspaceStatusContainerCrashed,
		WorkspaceStatusTimeout, WorkspaceStatusDestroyed, WorkspaceStatusCancelled:
		return true
	}
	return false
}

// ContributionStatus is the lifecycle status of a Contribution.
type ContributionStatus string

const (
	ContributionStatusPending ContributionStatus = "pending"
	ContributionStatusPROpen  ContributionStatus = "pr_open"
	ContributionStatusMerged  ContributionStatus = "merged"
	ContributionStatusClosed  ContributionStatus = "closed"
)

// LogStream identifies which container stream a WorkspaceLog line came from.
type LogStream string

const (
	LogStreamStdout LogStream = "stdout"
	LogStreamStderr LogStream = "stderr"
)

// PRSource identifies where a resolved PR reference came from.
type PRSource string

const (
	PRSourceWorkspace    PRSource = "workspace"
	PRSourceLogs         PRSource = "logs"
	PRSourceContribution PRSource = "contribution"
)

// Repository is a tracked source repository and its operator-owned fork.
type Repository struct {
	ID           int64     `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	OriginURL    string    `db:"origin_url" json:"origin_url"`
	ForkFullName string    `db:"fork_full_name" json:"fork_full_name,omitempty"`
	ForkURL      string    `db:"fork_url" json:"fork_url,omitempty"`
	Language     string    `db:"language" json:"language"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Issue is a single reported defect tracked against a Repository.
type Issue struct {
	ID            int64       `db:"id" json:"id"`
	RepositoryID  int64       `db:"repository_id" json:"repository_id"`
	Number        int         `db:"number" json:"number"`
	Title         string      `db:"title" json:"title"`
	Body          string      `db:"body" json:"body"`
	Labels        StringSlice `db:"labels" json:"labels"`
	Status        IssueStatus `db:"status" json:"status"`
	AIFixPrompt   *string     `db:"ai_fix_prompt" json:"ai_fix_prompt,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// RepositoryEnvironment is the toolchain inferred for a Repository.
type RepositoryEnvironment struct {
	ID             int64     `db:"id" json:"id"`
	RepositoryID   int64     `db:"repository_id" json:"repository_id"`
	Runtime        string    `db:"runtime" json:"runtime"`
	PackageManager string    `db:"package_manager" json:"package_manager"`
	SetupCommand   string    `db:"setup_command" json:"setup_command"`
	TestCommand    string    `db:"test_command" json:"test_command"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StructuredError is the JSON blob persisted on Workspace.ErrorMessage.
type StructuredError struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Workspace is a single attempt at fixing one Issue.
type Workspace struct {
	ID             int64           `db:"id" json:"id"`
	AgentID        int64           `db:"agent_id" json:"agent_id"`
	RepositoryID   int64           `db:"repository_id" json:"repository_id"`
	IssueID        int64           `db:"issue_id" json:"issue_id"`
	ContainerID    *string         `db:"container_id" json:"container_id,omitempty"`
	Status         WorkspaceStatus `db:"status" json:"status"`
	BranchName     string          `db:"branch_name" json:"branch_name"`
	BaseBranch     string          `db:"base_branch" json:"base_branch"`
	TimeoutMinutes float64         `db:"timeout_minutes" json:"timeout_minutes"`
	ExpiresAt      time.Time       `db:"expires_at" json:"expires_at"`
	Recipe         string          `db:"recipe" json:"recipe,omitempty"`
	PRURL          *string         `db:"pr_url" json:"pr_url,omitempty"`
	ErrorMessage   *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	DestroyedAt    *time.Time      `db:"destroyed_at" json:"destroyed_at,omitempty"`
}

// WorkspaceLog is one append-only line of a Workspace's execution log.
type WorkspaceLog struct {
	ID          int64     `db:"id" json:"id"`
	WorkspaceID int64     `db:"workspace_id" json:"workspace_id"`
	Stream      LogStream `db:"stream" json:"stream"`
	Line        string    `db:"line" json:"line"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
}

// Contribution is the persistent record of a produced (or pending) pull request.
type Contribution struct {
	ID          int64              `db:"id" json:"id"`
	AgentRunID  int64              `db:"agent_run_id" json:"agent_run_id"`
	IssueID     int64              `db:"issue_id" json:"issue_id"`
	PRURL       *string            `db:"pr_url" json:"pr_url,omitempty"`
	PRNumber    *int               `db:"pr_number" json:"pr_number,omitempty"`
	BranchName  string             `db:"branch_name" json:"branch_name"`
	Status      ContributionStatus `db:"status" json:"status"`
	Summary     string             `db:"summary" json:"summary,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// Webhook is an inbound provider event, stored for audit and reconciliation.
type Webhook struct {
	ID             int64     `db:"id" json:"id"`
	ContributionID *int64    `db:"contribution_id" json:"contribution_id,omitempty"`
	DeliveryID     *string   `db:"delivery_id" json:"delivery_id,omitempty"`
	EventType      string    `db:"event_type" json:"event_type"`
	Action         string    `db:"action" json:"action,omitempty"`
	RawPayload     []byte    `db:"raw_payload" json:"raw_payload"`
	Processed      bool      `db:"processed" json:"processed"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Agent is a registered coding-agent adapter (e.g. claude-code, codex, aider).
type Agent struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	ContainerImage string    `db:"container_image" json:"container_image"`
	InstallMethod  string    `db:"install_method" json:"install_method"`
	DefaultModel   string    `db:"default_model" json:"default_model"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AgentRun is one execution of an Agent against a Workspace.
type AgentRun struct {
	ID               int64      `db:"id" json:"id"`
	WorkspaceID      int64      `db:"workspace_id" json:"workspace_id"`
	AgentID          int64      `db:"agent_id" json:"agent_id"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ExitCode         *int       `db:"exit_code" json:"exit_code,omitempty"`
	PromptTokens     int        `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int        `db:"completion_tokens" json:"completion_tokens"`
	CostUSD          float64    `db:"cost_usd" json:"cost_usd"`
}

// AgentState tracks the circuit-breaker suspension state of an Agent.
type AgentState struct {
	ID                        int64      `db:"id" json:"id"`
	AgentID                   int64      `db:"agent_id" json:"agent_id"`
	Suspended                 bool       `db:"suspended" json:"suspended"`
	SuspendedUntil            *time.Time `db:"suspended_until" json:"suspended_until,omitempty"`
	TriggeringAgentRunID      *int64     `db:"triggering_agent_run_id" json:"triggering_agent_run_id,omitempty"`
	TriggeringContributionID  *int64     `db:"triggering_contribution_id" json:"triggering_contribution_id,omitempty"`
	ConsecutiveFailures       int        `db:"consecutive_failures" json:"consecutive_failures"`
	UpdatedAt                 time.Time  `db:"updated_at" json:"updated_at"`
}

// ConfigEntry is a key/value row in the operator configuration table.
type ConfigEntry struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
