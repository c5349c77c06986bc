package linear

// User is a Linear workspace member.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Team is a Linear team.
type Team struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// WorkflowState is an issue state within a team's workflow.
type WorkflowState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Label is an issue label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Project is a Linear project.
type Project struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	State       string  `json:"state,omitempty"`
	Progress    float64 `json:"progress,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// Issue is a Linear issue.
type Issue struct {
	ID            string         `json:"id"`
	Identifier    string         `json:"identifier"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Priority      int            `json:"priority"`
	PriorityLabel string         `json:"priorityLabel,omitempty"`
	State         *WorkflowState `json:"state,omitempty"`
	Assignee      *User          `json:"assignee,omitempty"`
	Team          *Team          `json:"team,omitempty"`
	Project       *Project       `json:"project,omitempty"`
	Labels        []Label        `json:"labels,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	URL           string         `json:"url,omitempty"`
}

// Comment is an issue comment.
type Comment struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	User      *User  `json:"user,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	URL       string `json:"url,omitempty"`
}

// PageInfo carries Relay-style pagination state.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor,omitempty"`
}

// IssueFilter narrows issue listings. Zero-valued fields are omitted.
type IssueFilter struct {
	TeamID     string
	AssigneeID string
	StateID    string
	LabelID    string
	ProjectID  string
}

// IssuePage is one page of issues.
type IssuePage struct {
	Issues   []Issue  `json:"issues"`
	PageInfo PageInfo `json:"pageInfo"`
}

// CommentPage is one page of comments on an issue.
type CommentPage struct {
	Comments []Comment `json:"comments"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// CreateIssueInput carries fields for issue creation. TeamID and Title are
// required.
type CreateIssueInput struct {
	TeamID      string
	Title       string
	Description string
	AssigneeID  string
	StateID     string
	ProjectID   string
	Priority    int
	LabelIDs    []string
}

// UpdateIssueInput carries fields for issue update; at least one optional
// field must be set.
type UpdateIssueInput struct {
	ID          string
	Title       string
	Description string
	AssigneeID  string
	StateID     string
	ProjectID   string
	Priority    int
	LabelIDs    []string
}
