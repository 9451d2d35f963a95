package action

import (
	"context"
	"fmt"

	git "github.com/go-git/go-git/v5"
)

func openRepo(action, dir string) (*git.Repository, error) {
	if dir == "" {
		dir = "."
	}
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, &DependencyError{Action: action, Dependency: "git", Err: fmt.Errorf("open %s: %w", dir, err)}
	}
	return repo, nil
}

// requireCleanWorktree blocks when the repository has uncommitted changes.
func requireCleanWorktree(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	msg, err := stringArg("require_clean_worktree", args, "message", false)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "commit or stash your changes before proceeding"
	}
	repo, err := openRepo("require_clean_worktree", ac.WorkTree)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return &DependencyError{Action: "require_clean_worktree", Dependency: "git", Err: err}
	}
	status, err := wt.Status()
	if err != nil {
		return &DependencyError{Action: "require_clean_worktree", Dependency: "git", Err: err}
	}
	if !status.IsClean() {
		ac.Response.Block = true
		ac.Response.Message = msg
	}
	return nil
}

// requireCommitSince blocks unless HEAD carries a commit made after the
// current step was entered.
func requireCommitSince(ctx context.Context, ac *Context, args map[string]any) error {
	_ = ctx
	msg, err := stringArg("require_commit_since", args, "message", false)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "make a commit in this step before proceeding"
	}
	repo, err := openRepo("require_commit_since", ac.WorkTree)
	if err != nil {
		return err
	}
	head, err := repo.Head()
	if err != nil {
		return &DependencyError{Action: "require_commit_since", Dependency: "git", Err: err}
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return &DependencyError{Action: "require_commit_since", Dependency: "git", Err: err}
	}
	if commit.Committer.When.Before(ac.State.StepEnteredAt) {
		ac.Response.Block = true
		ac.Response.Message = msg
	}
	return nil
}
