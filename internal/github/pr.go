package github

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

// CommentMarker identifies the comment this tool maintains on a pull request
const CommentMarker = "<!-- queryscope-report -->"

// CommentService posts analysis summaries to pull requests
type CommentService struct {
	token   string
	client  *http.Client
	baseURL string
}

// NewCommentService creates a new comment service
func NewCommentService(token string) *CommentService {
	return &CommentService{
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.github.com",
	}
}

// Comment is an issue or pull request comment
type Comment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// UpsertReport creates the report comment on a pull request, or edits the
// existing one so repeated runs leave a single comment
func (s *CommentService) UpsertReport(ctx context.Context, owner, repo string, number int, body string) (*Comment, error) {
	if !strings.Contains(body, CommentMarker) {
		body = CommentMarker + "\n" + body
	}

	existing, err := s.FindComment(ctx, owner, repo, number, CommentMarker)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		url := fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", s.baseURL, owner, repo, existing.ID)
		return s.send(ctx, http.MethodPatch, url, body, http.StatusOK)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", s.baseURL, owner, repo, number)
	return s.send(ctx, http.MethodPost, url, body, http.StatusCreated)
}

// FindComment returns the first comment on the pull request containing
// marker, or nil
func (s *CommentService) FindComment(ctx context.Context, owner, repo string, number int, marker string) (*Comment, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?per_page=100", s.baseURL, owner, repo, number)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(httpReq)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list comments: %s", resp.Status)
	}

	var comments []Comment
	if err := json.NewDecoder(resp.Body).Decode(&comments); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	for i := range comments {
		if strings.Contains(comments[i].Body, marker) {
			return &comments[i], nil
		}
	}
	return nil, nil
}

func (s *CommentService) send(ctx context.Context, method, url, body string, want int) (*Comment, error) {
	payload, _ := json.Marshal(map[string]string{"body": body})

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	s.setHeaders(httpReq)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to write comment: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return nil, fmt.Errorf("failed to write comment: %s - %s", resp.Status, string(respBody))
	}

	var comment Comment
	if err := json.Unmarshal(respBody, &comment); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &comment, nil
}

func (s *CommentService) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")
}
