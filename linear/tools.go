package linear

import (
	"context"

	"github.com/halcyonic/linear-mcp/mcp"
	"github.com/halcyonic/linear-mcp/toolset"
)

type listIssuesArgs struct {
	TeamID     string `json:"team_id,omitempty" jsonschema:"description=Filter by team ID"`
	AssigneeID string `json:"assignee_id,omitempty" jsonschema:"description=Filter by assignee user ID"`
	StateID    string `json:"state_id,omitempty" jsonschema:"description=Filter by workflow state ID"`
	LabelID    string `json:"label_id,omitempty" jsonschema:"description=Filter by label ID"`
	ProjectID  string `json:"project_id,omitempty" jsonschema:"description=Filter by project ID"`
	First      int    `json:"first,omitempty" jsonschema:"description=Page size (max 100)"`
	After      string `json:"after,omitempty" jsonschema:"description=Pagination cursor from a previous page"`
}

type getIssueArgs struct {
	ID string `json:"id" jsonschema:"description=Issue UUID or identifier such as ENG-123"`
}

type createIssueArgs struct {
	TeamID      string   `json:"team_id" jsonschema:"description=Team to create the issue in"`
	Title       string   `json:"title" jsonschema:"description=Issue title"`
	Description string   `json:"description,omitempty" jsonschema:"description=Markdown description"`
	AssigneeID  string   `json:"assignee_id,omitempty" jsonschema:"description=User to assign"`
	StateID     string   `json:"state_id,omitempty" jsonschema:"description=Initial workflow state"`
	ProjectID   string   `json:"project_id,omitempty" jsonschema:"description=Project to attach the issue to"`
	Priority    int      `json:"priority,omitempty" jsonschema:"description=Priority 0 (none) to 4 (low)"`
	LabelIDs    []string `json:"label_ids,omitempty" jsonschema:"description=Label IDs to apply"`
}

type updateIssueArgs struct {
	ID          string   `json:"id" jsonschema:"description=Issue UUID or identifier"`
	Title       string   `json:"title,omitempty" jsonschema:"description=New title"`
	Description string   `json:"description,omitempty" jsonschema:"description=New markdown description"`
	AssigneeID  string   `json:"assignee_id,omitempty" jsonschema:"description=New assignee user ID"`
	StateID     string   `json:"state_id,omitempty" jsonschema:"description=New workflow state ID"`
	ProjectID   string   `json:"project_id,omitempty" jsonschema:"description=New project ID"`
	Priority    int      `json:"priority,omitempty" jsonschema:"description=New priority 0-4"`
	LabelIDs    []string `json:"label_ids,omitempty" jsonschema:"description=Replacement label IDs"`
}

type searchIssuesArgs struct {
	Query string `json:"query" jsonschema:"description=Full-text search terms"`
	First int    `json:"first,omitempty" jsonschema:"description=Page size (max 100)"`
}

type addCommentArgs struct {
	IssueID string `json:"issue_id" jsonschema:"description=Issue to comment on"`
	Body    string `json:"body" jsonschema:"description=Markdown comment body"`
}

type listCommentsArgs struct {
	IssueID string `json:"issue_id" jsonschema:"description=Issue whose comments to list"`
	First   int    `json:"first,omitempty" jsonschema:"description=Page size (max 100)"`
	After   string `json:"after,omitempty" jsonschema:"description=Pagination cursor from a previous page"`
}

type listProjectsArgs struct {
	First int `json:"first,omitempty" jsonschema:"description=Page size (max 100)"`
}

type listWorkflowStatesArgs struct {
	TeamID string `json:"team_id" jsonschema:"description=Team whose workflow states to list"`
}

type emptyArgs struct{}

// Tools builds the fixed tool surface backed by the given client. The
// returned registry is the process's tools/list source and tools/call
// dispatch table.
func Tools(c *Client) (*toolset.Registry, error) {
	return toolset.New(
		toolset.NewTool("linear_get_viewer",
			func(ctx context.Context, _ emptyArgs) (*mcp.CallToolResult, error) {
				viewer, err := c.Viewer(ctx)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(viewer), nil
			},
			toolset.WithDescription("Get the authenticated Linear user."),
		),
		toolset.NewTool("linear_list_teams",
			func(ctx context.Context, _ emptyArgs) (*mcp.CallToolResult, error) {
				teams, err := c.ListTeams(ctx)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(teams), nil
			},
			toolset.WithDescription("List Linear teams in the workspace."),
		),
		toolset.NewTool("linear_list_issues",
			func(ctx context.Context, args listIssuesArgs) (*mcp.CallToolResult, error) {
				page, err := c.ListIssues(ctx, IssueFilter{
					TeamID:     args.TeamID,
					AssigneeID: args.AssigneeID,
					StateID:    args.StateID,
					LabelID:    args.LabelID,
					ProjectID:  args.ProjectID,
				}, args.First, args.After)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(page), nil
			},
			toolset.WithDescription("List Linear issues with optional filters for team, assignee, state, label, and project."),
		),
		toolset.NewTool("linear_get_issue",
			func(ctx context.Context, args getIssueArgs) (*mcp.CallToolResult, error) {
				if args.ID == "" {
					return toolset.Errorf("id is required"), nil
				}
				issue, err := c.GetIssue(ctx, args.ID)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(issue), nil
			},
			toolset.WithDescription("Get a Linear issue by ID or identifier (e.g., ENG-123)."),
		),
		toolset.NewTool("linear_create_issue",
			func(ctx context.Context, args createIssueArgs) (*mcp.CallToolResult, error) {
				if args.TeamID == "" || args.Title == "" {
					return toolset.Errorf("team_id and title are required"), nil
				}
				issue, err := c.CreateIssue(ctx, CreateIssueInput{
					TeamID:      args.TeamID,
					Title:       args.Title,
					Description: args.Description,
					AssigneeID:  args.AssigneeID,
					StateID:     args.StateID,
					ProjectID:   args.ProjectID,
					Priority:    args.Priority,
					LabelIDs:    args.LabelIDs,
				})
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(issue), nil
			},
			toolset.WithDescription("Create a new issue in a Linear team."),
		),
		toolset.NewTool("linear_update_issue",
			func(ctx context.Context, args updateIssueArgs) (*mcp.CallToolResult, error) {
				if args.ID == "" {
					return toolset.Errorf("id is required"), nil
				}
				issue, err := c.UpdateIssue(ctx, UpdateIssueInput{
					ID:          args.ID,
					Title:       args.Title,
					Description: args.Description,
					AssigneeID:  args.AssigneeID,
					StateID:     args.StateID,
					ProjectID:   args.ProjectID,
					Priority:    args.Priority,
					LabelIDs:    args.LabelIDs,
				})
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(issue), nil
			},
			toolset.WithDescription("Update fields on an existing Linear issue."),
		),
		toolset.NewTool("linear_search_issues",
			func(ctx context.Context, args searchIssuesArgs) (*mcp.CallToolResult, error) {
				if args.Query == "" {
					return toolset.Errorf("query is required"), nil
				}
				page, err := c.SearchIssues(ctx, args.Query, args.First)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(page), nil
			},
			toolset.WithDescription("Full-text search Linear issues."),
		),
		toolset.NewTool("linear_add_comment",
			func(ctx context.Context, args addCommentArgs) (*mcp.CallToolResult, error) {
				if args.IssueID == "" || args.Body == "" {
					return toolset.Errorf("issue_id and body are required"), nil
				}
				comment, err := c.AddComment(ctx, args.IssueID, args.Body)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(comment), nil
			},
			toolset.WithDescription("Add a comment to a Linear issue."),
		),
		toolset.NewTool("linear_list_comments",
			func(ctx context.Context, args listCommentsArgs) (*mcp.CallToolResult, error) {
				if args.IssueID == "" {
					return toolset.Errorf("issue_id is required"), nil
				}
				page, err := c.ListComments(ctx, args.IssueID, args.First, args.After)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(page), nil
			},
			toolset.WithDescription("List comments on a Linear issue."),
		),
		toolset.NewTool("linear_list_projects",
			func(ctx context.Context, args listProjectsArgs) (*mcp.CallToolResult, error) {
				projects, err := c.ListProjects(ctx, args.First)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(projects), nil
			},
			toolset.WithDescription("List Linear projects."),
		),
		toolset.NewTool("linear_list_workflow_states",
			func(ctx context.Context, args listWorkflowStatesArgs) (*mcp.CallToolResult, error) {
				if args.TeamID == "" {
					return toolset.Errorf("team_id is required"), nil
				}
				states, err := c.ListWorkflowStates(ctx, args.TeamID)
				if err != nil {
					return nil, err
				}
				return toolset.JSONResult(states), nil
			},
			toolset.WithDescription("List workflow states for a Linear team."),
		),
	)
}
