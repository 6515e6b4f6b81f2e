package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"
)

// RepoService clones remote projects for analysis
type RepoService struct {
	baseDir string
	token   string
}

// NewRepoService creates a new repository service
func NewRepoService(baseDir, token string) *RepoService {
	return &RepoService{
		baseDir: baseDir,
		token:   token,
	}
}

// RepoInfo contains parsed repository information
type RepoInfo struct {
	Owner    string
	Name     string
	URL      string
	CloneURL string
	// Branch is empty for the default branch
	Branch string
}

// FullName returns owner/name
func (r *RepoInfo) FullName() string {
	return r.Owner + "/" + r.Name
}

// CloneResult contains the result of a clone operation
type CloneResult struct {
	Path      string
	CommitSHA string
	Branch    string
}

// ParseRepoURL parses a GitHub URL or owner/name shorthand. A /tree/<branch>
// suffix selects a branch.
func ParseRepoURL(rawURL string) (*RepoInfo, error) {
	rawURL = strings.TrimSpace(rawURL)

	// git@github.com:owner/repo.git
	if strings.HasPrefix(rawURL, "git@") {
		parts := strings.Split(rawURL, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid SSH URL format: %s", rawURL)
		}
		return newRepoInfo(rawURL, strings.Split(strings.TrimSuffix(parts[1], ".git"), "/"))
	}

	// owner/repo
	if !strings.Contains(rawURL, "://") && strings.Count(rawURL, "/") == 1 {
		return newRepoInfo(rawURL, strings.Split(rawURL, "/"))
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	if parsed.Host != "github.com" {
		return nil, fmt.Errorf("only github.com URLs are supported, got: %s", parsed.Host)
	}

	pathParts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(pathParts) < 2 {
		return nil, fmt.Errorf("invalid repo path: %s", parsed.Path)
	}

	info, err := newRepoInfo(rawURL, pathParts[:2])
	if err != nil {
		return nil, err
	}
	if len(pathParts) >= 4 && pathParts[2] == "tree" {
		info.Branch = strings.Join(pathParts[3:], "/")
	}
	return info, nil
}

// repoSegment matches a GitHub owner or repository name
var repoSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validSegment(s string) bool {
	return s != "." && s != ".." && repoSegment.MatchString(s)
}

func newRepoInfo(rawURL string, parts []string) (*RepoInfo, error) {
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid repo path: %s", rawURL)
	}
	owner := parts[0]
	name := strings.TrimSuffix(parts[1], ".git")
	if !validSegment(owner) || !validSegment(name) {
		return nil, fmt.Errorf("invalid repo path: %s", rawURL)
	}
	return &RepoInfo{
		Owner:    owner,
		Name:     name,
		URL:      rawURL,
		CloneURL: fmt.Sprintf("https://github.com/%s/%s.git", owner, name),
	}, nil
}

// Dir returns where info is checked out under the base directory
func (s *RepoService) Dir(info *RepoInfo) string {
	return filepath.Join(s.root(), info.Owner, info.Name)
}

func (s *RepoService) root() string {
	return filepath.Join(s.baseDir, "queryscope")
}

// checkoutDir returns Dir(info) when info names a valid repository and the
// directory lies strictly inside the checkout root
func (s *RepoService) checkoutDir(info *RepoInfo) (string, error) {
	if !validSegment(info.Owner) || !validSegment(info.Name) {
		return "", fmt.Errorf("invalid repository name: %s", info.FullName())
	}
	dir := s.Dir(info)
	rel, err := filepath.Rel(s.root(), dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("checkout path %s escapes %s", dir, s.root())
	}
	return dir, nil
}

// Checkout updates an earlier checkout of the default branch, or clones
// the repository when there is none or the update fails
func (s *RepoService) Checkout(ctx context.Context, info *RepoInfo) (*CloneResult, error) {
	repoDir, err := s.checkoutDir(info)
	if err != nil {
		return nil, err
	}
	if info.Branch == "" {
		if _, err := git.PlainOpen(repoDir); err == nil {
			result, err := s.Pull(ctx, repoDir)
			if err == nil {
				return result, nil
			}
			log.Warn().Err(err).Str("path", repoDir).Msg("update failed, cloning again")
		}
	}
	return s.Clone(ctx, info)
}

// Clone makes a shallow clone of the repository under the base directory,
// replacing any earlier checkout
func (s *RepoService) Clone(ctx context.Context, info *RepoInfo) (*CloneResult, error) {
	repoDir, err := s.checkoutDir(info)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(repoDir); err == nil {
		log.Debug().Str("path", repoDir).Msg("removing existing repo directory")
		if err := os.RemoveAll(repoDir); err != nil {
			return nil, fmt.Errorf("failed to remove existing directory: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(repoDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	log.Info().
		Str("url", info.CloneURL).
		Str("path", repoDir).
		Msg("cloning repository")

	cloneOpts := &git.CloneOptions{
		URL:   info.CloneURL,
		Depth: 1,
		Auth:  s.auth(),
	}
	if info.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(info.Branch)
		cloneOpts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, repoDir, false, cloneOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", info.FullName(), err)
	}

	return headResult(repo, repoDir)
}

// Pull updates an existing checkout
func (s *RepoService) Pull(ctx context.Context, repoPath string) (*CloneResult, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{Auth: s.auth()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to pull: %w", err)
	}

	return headResult(repo, repoPath)
}

// auth returns token credentials, or nil for anonymous access
func (s *RepoService) auth() transport.AuthMethod {
	if s.token == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: "git", // any non-empty user works with a token
		Password: s.token,
	}
}

func headResult(repo *git.Repository, path string) (*CloneResult, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	result := &CloneResult{
		Path:      path,
		CommitSHA: head.Hash().String(),
		Branch:    head.Name().Short(),
	}

	log.Info().
		Str("commit", result.CommitSHA[:8]).
		Str("branch", result.Branch).
		Msg("checkout ready")

	return result, nil
}
