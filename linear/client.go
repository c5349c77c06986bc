package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultPageSize = 50
	maxPageSize     = 100
	defaultAPIURL   = "https://api.linear.app/graphql"

	// maxResponseSize bounds response reads to prevent memory exhaustion.
	maxResponseSize = 10 * 1024 * 1024
)

// issueFields is the inline GraphQL field selection used for issue queries.
const issueFields = `
	id identifier title description priority priorityLabel
	state { id name type }
	assignee { id name email }
	team { id key name }
	project { id name }
	labels { nodes { id name } }
	createdAt updatedAt url
`

// commentFields is the inline GraphQL field selection for comments.
const commentFields = `
	id body user { id name } createdAt url
`

// projectFields is the inline GraphQL field selection for projects.
const projectFields = `
	id name description state progress url
`

// Client talks to the Linear GraphQL API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	apiURL     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIURL overrides the GraphQL endpoint (tests, proxies).
func WithAPIURL(u string) ClientOption {
	return func(c *Client) { c.apiURL = u }
}

// NewClient constructs a Linear API client for the given API key.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("linear api key is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		apiURL:     defaultAPIURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// rawIssue mirrors the GraphQL issue shape before label flattening.
type rawIssue struct {
	Issue
	Labels struct {
		Nodes []Label `json:"nodes"`
	} `json:"labels"`
}

func (r *rawIssue) toIssue() Issue {
	iss := r.Issue
	iss.Labels = r.Labels.Nodes
	return iss
}

type rawPageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

func (p rawPageInfo) toPageInfo() PageInfo {
	return PageInfo{HasNextPage: p.HasNextPage, EndCursor: p.EndCursor}
}

// Viewer returns the authenticated user.
func (c *Client) Viewer(ctx context.Context) (*User, error) {
	var out struct {
		Viewer User `json:"viewer"`
	}
	query := `query { viewer { id name email } }`
	if err := c.do(ctx, query, nil, &out); err != nil {
		return nil, err
	}
	return &out.Viewer, nil
}

// ListTeams returns the workspace's teams.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var out struct {
		Teams struct {
			Nodes []Team `json:"nodes"`
		} `json:"teams"`
	}
	query := `query { teams { nodes { id key name } } }`
	if err := c.do(ctx, query, nil, &out); err != nil {
		return nil, err
	}
	return out.Teams.Nodes, nil
}

// ListWorkflowStates returns the issue states for a team.
func (c *Client) ListWorkflowStates(ctx context.Context, teamID string) ([]WorkflowState, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, fmt.Errorf("team_id is required")
	}
	var out struct {
		Team struct {
			States struct {
				Nodes []WorkflowState `json:"nodes"`
			} `json:"states"`
		} `json:"team"`
	}
	query := `query($id: String!) {
		team(id: $id) { states { nodes { id name type } } }
	}`
	if err := c.do(ctx, query, map[string]any{"id": teamID}, &out); err != nil {
		return nil, err
	}
	return out.Team.States.Nodes, nil
}

// ListIssues returns a page of issues matching the filter.
func (c *Client) ListIssues(ctx context.Context, filter IssueFilter, first int, after string) (*IssuePage, error) {
	eq := func(id string) map[string]any {
		return map[string]any{"id": map[string]any{"eq": id}}
	}
	gqlFilter := map[string]any{}
	if v := strings.TrimSpace(filter.TeamID); v != "" {
		gqlFilter["team"] = eq(v)
	}
	if v := strings.TrimSpace(filter.AssigneeID); v != "" {
		gqlFilter["assignee"] = eq(v)
	}
	if v := strings.TrimSpace(filter.StateID); v != "" {
		gqlFilter["state"] = eq(v)
	}
	if v := strings.TrimSpace(filter.LabelID); v != "" {
		gqlFilter["labels"] = eq(v)
	}
	if v := strings.TrimSpace(filter.ProjectID); v != "" {
		gqlFilter["project"] = eq(v)
	}

	vars := map[string]any{"first": pageSize(first)}
	if after = strings.TrimSpace(after); after != "" {
		vars["after"] = after
	}
	if len(gqlFilter) > 0 {
		vars["filter"] = gqlFilter
	}

	var out struct {
		Issues struct {
			Nodes    []rawIssue  `json:"nodes"`
			PageInfo rawPageInfo `json:"pageInfo"`
		} `json:"issues"`
	}
	query := `query($first: Int!, $after: String, $filter: IssueFilter) {
		issues(first: $first, after: $after, filter: $filter) {
			nodes {` + issueFields + `}
			pageInfo { hasNextPage endCursor }
		}
	}`
	if err := c.do(ctx, query, vars, &out); err != nil {
		return nil, err
	}

	page := &IssuePage{PageInfo: out.Issues.PageInfo.toPageInfo()}
	for i := range out.Issues.Nodes {
		page.Issues = append(page.Issues, out.Issues.Nodes[i].toIssue())
	}
	return page, nil
}

// GetIssue fetches one issue by UUID or identifier (e.g., "ENG-123").
func (c *Client) GetIssue(ctx context.Context, id string) (*Issue, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	var out struct {
		Issue *rawIssue `json:"issue"`
	}
	query := `query($id: String!) {
		issue(id: $id) {` + issueFields + `}
	}`
	if err := c.do(ctx, query, map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	if out.Issue == nil || out.Issue.ID == "" {
		return nil, fmt.Errorf("issue not found: %s", id)
	}
	iss := out.Issue.toIssue()
	return &iss, nil
}

// CreateIssue creates an issue in a team.
func (c *Client) CreateIssue(ctx context.Context, in CreateIssueInput) (*Issue, error) {
	if strings.TrimSpace(in.TeamID) == "" {
		return nil, fmt.Errorf("team_id is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}

	input := map[string]any{
		"teamId": in.TeamID,
		"title":  in.Title,
	}
	if v := strings.TrimSpace(in.Description); v != "" {
		input["description"] = v
	}
	if v := strings.TrimSpace(in.AssigneeID); v != "" {
		input["assigneeId"] = v
	}
	if v := strings.TrimSpace(in.StateID); v != "" {
		input["stateId"] = v
	}
	if v := strings.TrimSpace(in.ProjectID); v != "" {
		input["projectId"] = v
	}
	if in.Priority != 0 {
		input["priority"] = in.Priority
	}
	if len(in.LabelIDs) > 0 {
		input["labelIds"] = in.LabelIDs
	}

	var out struct {
		IssueCreate struct {
			Success bool      `json:"success"`
			Issue   *rawIssue `json:"issue"`
		} `json:"issueCreate"`
	}
	query := `mutation($input: IssueCreateInput!) {
		issueCreate(input: $input) {
			success
			issue {` + issueFields + `}
		}
	}`
	if err := c.do(ctx, query, map[string]any{"input": input}, &out); err != nil {
		return nil, err
	}
	if !out.IssueCreate.Success || out.IssueCreate.Issue == nil {
		return nil, fmt.Errorf("issue create was not successful")
	}
	iss := out.IssueCreate.Issue.toIssue()
	return &iss, nil
}

// UpdateIssue updates fields on an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, in UpdateIssueInput) (*Issue, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("id is required")
	}

	input := map[string]any{}
	if v := strings.TrimSpace(in.Title); v != "" {
		input["title"] = v
	}
	if v := strings.TrimSpace(in.Description); v != "" {
		input["description"] = v
	}
	if v := strings.TrimSpace(in.AssigneeID); v != "" {
		input["assigneeId"] = v
	}
	if v := strings.TrimSpace(in.StateID); v != "" {
		input["stateId"] = v
	}
	if v := strings.TrimSpace(in.ProjectID); v != "" {
		input["projectId"] = v
	}
	if in.Priority != 0 {
		input["priority"] = in.Priority
	}
	if len(in.LabelIDs) > 0 {
		input["labelIds"] = in.LabelIDs
	}
	if len(input) == 0 {
		return nil, fmt.Errorf("at least one field is required for update")
	}

	var out struct {
		IssueUpdate struct {
			Success bool      `json:"success"`
			Issue   *rawIssue `json:"issue"`
		} `json:"issueUpdate"`
	}
	query := `mutation($id: String!, $input: IssueUpdateInput!) {
		issueUpdate(id: $id, input: $input) {
			success
			issue {` + issueFields + `}
		}
	}`
	if err := c.do(ctx, query, map[string]any{"id": in.ID, "input": input}, &out); err != nil {
		return nil, err
	}
	if !out.IssueUpdate.Success || out.IssueUpdate.Issue == nil {
		return nil, fmt.Errorf("issue update was not successful")
	}
	iss := out.IssueUpdate.Issue.toIssue()
	return &iss, nil
}

// SearchIssues full-text searches issues.
func (c *Client) SearchIssues(ctx context.Context, term string, first int) (*IssuePage, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("query is required")
	}
	var out struct {
		SearchIssues struct {
			Nodes    []rawIssue  `json:"nodes"`
			PageInfo rawPageInfo `json:"pageInfo"`
		} `json:"searchIssues"`
	}
	query := `query($term: String!, $first: Int!) {
		searchIssues(term: $term, first: $first) {
			nodes {` + issueFields + `}
			pageInfo { hasNextPage endCursor }
		}
	}`
	if err := c.do(ctx, query, map[string]any{"term": term, "first": pageSize(first)}, &out); err != nil {
		return nil, err
	}
	page := &IssuePage{PageInfo: out.SearchIssues.PageInfo.toPageInfo()}
	for i := range out.SearchIssues.Nodes {
		page.Issues = append(page.Issues, out.SearchIssues.Nodes[i].toIssue())
	}
	return page, nil
}

// AddComment adds a comment to an issue.
func (c *Client) AddComment(ctx context.Context, issueID, body string) (*Comment, error) {
	if strings.TrimSpace(issueID) == "" {
		return nil, fmt.Errorf("issue_id is required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("body is required")
	}
	var out struct {
		CommentCreate struct {
			Success bool     `json:"success"`
			Comment *Comment `json:"comment"`
		} `json:"commentCreate"`
	}
	query := `mutation($input: CommentCreateInput!) {
		commentCreate(input: $input) {
			success
			comment {` + commentFields + `}
		}
	}`
	vars := map[string]any{"input": map[string]any{"issueId": issueID, "body": body}}
	if err := c.do(ctx, query, vars, &out); err != nil {
		return nil, err
	}
	if !out.CommentCreate.Success || out.CommentCreate.Comment == nil {
		return nil, fmt.Errorf("comment create was not successful")
	}
	return out.CommentCreate.Comment, nil
}

// ListComments returns a page of comments for an issue.
func (c *Client) ListComments(ctx context.Context, issueID string, first int, after string) (*CommentPage, error) {
	if strings.TrimSpace(issueID) == "" {
		return nil, fmt.Errorf("issue_id is required")
	}
	vars := map[string]any{"id": issueID, "first": pageSize(first)}
	if after = strings.TrimSpace(after); after != "" {
		vars["after"] = after
	}
	var out struct {
		Issue struct {
			Comments struct {
				Nodes    []Comment   `json:"nodes"`
				PageInfo rawPageInfo `json:"pageInfo"`
			} `json:"comments"`
		} `json:"issue"`
	}
	query := `query($id: String!, $first: Int!, $after: String) {
		issue(id: $id) {
			comments(first: $first, after: $after) {
				nodes {` + commentFields + `}
				pageInfo { hasNextPage endCursor }
			}
		}
	}`
	if err := c.do(ctx, query, vars, &out); err != nil {
		return nil, err
	}
	return &CommentPage{
		Comments: out.Issue.Comments.Nodes,
		PageInfo: out.Issue.Comments.PageInfo.toPageInfo(),
	}, nil
}

// ListProjects returns the workspace's projects.
func (c *Client) ListProjects(ctx context.Context, first int) ([]Project, error) {
	var out struct {
		Projects struct {
			Nodes []Project `json:"nodes"`
		} `json:"projects"`
	}
	query := `query($first: Int!) {
		projects(first: $first) { nodes {` + projectFields + `} }
	}`
	if err := c.do(ctx, query, map[string]any{"first": pageSize(first)}, &out); err != nil {
		return nil, err
	}
	return out.Projects.Nodes, nil
}

func pageSize(first int) int {
	if first <= 0 {
		return defaultPageSize
	}
	if first > maxPageSize {
		return maxPageSize
	}
	return first
}

// do executes one GraphQL request and decodes the data field into out.
func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body := map[string]any{"query": query}
	if len(variables) > 0 {
		body["variables"] = variables
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal linear request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build linear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("linear request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		requestID := strings.TrimSpace(resp.Header.Get("X-Request-Id"))
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("linear rate limit exceeded: retry_after=%s request_id=%s",
				resp.Header.Get("Retry-After"), requestID)
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return fmt.Errorf("linear POST %s failed: status=%d request_id=%s response_bytes=%d",
			c.apiURL, resp.StatusCode, requestID, len(raw))
	}

	var result struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&result); err != nil {
		return fmt.Errorf("decode linear response: %w", err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msg := strings.TrimSpace(e.Message)
			if msg == "" {
				msg = "(unknown error)"
			}
			msgs = append(msgs, msg)
		}
		return fmt.Errorf("linear graphql errors: %s", strings.Join(msgs, "; "))
	}
	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("decode linear data: %w", err)
		}
	}
	return nil
}
