// Package gitio provides the Git queries WorkMesh needs: branch and
// head inspection via go-git, and worktree creation via the git CLI,
// which go-git does not implement.
package gitio

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Git is the repository surface used by sessions, worktrees, and the
// branch-derived initiative allocator. Implementations must tolerate
// being pointed at a directory that is not a repository.
type Git interface {
	// Available reports whether dir is inside a git repository.
	Available(dir string) bool
	// CurrentBranch returns the short branch name, or "" when detached
	// or not a repository.
	CurrentBranch(dir string) string
	// HeadSHA returns the full head commit hash, or "".
	HeadSHA(dir string) string
	// IsDirty reports whether the working tree has uncommitted changes.
	IsDirty(dir string) bool
	// CreateWorktree adds a linked working tree at path for branch,
	// creating the branch when it does not exist.
	CreateWorktree(repoDir, path, branch string) error
}

// System reads repositories on disk.
type System struct{}

func openRepo(dir string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
}

// Available implements Git.
func (System) Available(dir string) bool {
	_, err := openRepo(dir)
	return err == nil
}

// CurrentBranch implements Git.
func (System) CurrentBranch(dir string) string {
	repo, err := openRepo(dir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// HeadSHA implements Git.
func (System) HeadSHA(dir string) string {
	repo, err := openRepo(dir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// IsDirty implements Git.
func (System) IsDirty(dir string) bool {
	repo, err := openRepo(dir)
	if err != nil {
		return false
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false
	}
	status, err := wt.Status()
	if err != nil {
		return false
	}
	return !status.IsClean()
}

// CreateWorktree implements Git. go-git has no worktree-add, so this
// shells out to the git binary.
func (System) CreateWorktree(repoDir, path, branch string) error {
	args := []string{"-C", repoDir, "worktree", "add", path}
	if branch != "" {
		if branchExists(repoDir, branch) {
			args = append(args, branch)
		} else {
			args = append(args, "-b", branch)
		}
	}
	cmd := exec.Command("git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git worktree add: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func branchExists(repoDir, branch string) bool {
	repo, err := openRepo(repoDir)
	if err != nil {
		return false
	}
	branches, err := repo.Branches()
	if err != nil {
		return false
	}
	defer branches.Close()
	found := false
	for {
		ref, err := branches.Next()
		if err != nil {
			break
		}
		if ref.Name().Short() == branch {
			found = true
			break
		}
	}
	return found
}

// Fake is an in-memory Git for tests.
type Fake struct {
	Branch    string
	SHA       string
	Dirty     bool
	Repo      bool
	Worktrees map[string]string // path -> branch
	FailAdd   bool
}

// Available implements Git.
func (f *Fake) Available(string) bool { return f.Repo }

// CurrentBranch implements Git.
func (f *Fake) CurrentBranch(string) string { return f.Branch }

// HeadSHA implements Git.
func (f *Fake) HeadSHA(string) string { return f.SHA }

// IsDirty implements Git.
func (f *Fake) IsDirty(string) bool { return f.Dirty }

// CreateWorktree implements Git.
func (f *Fake) CreateWorktree(_, path, branch string) error {
	if f.FailAdd {
		return fmt.Errorf("git worktree add: fake failure")
	}
	if f.Worktrees == nil {
		f.Worktrees = make(map[string]string)
	}
	f.Worktrees[path] = branch
	return nil
}
