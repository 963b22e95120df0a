/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package clonemanager owns the local git working tree the agent reads from
// and writes to. It wraps go-git for every repository operation except patch
// application, which shells out to the git binary (see apply.go).
package clonemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const (
	cloneDirPrefix = "issueforge-clone-"

	// fileReadLimit bounds how much of any one file is handed to the model.
	fileReadLimit = 20_000

	truncationMarker = "\n... [truncated]"
)

// Manager owns a single working tree for one repository and carries the
// credentials and commit identity used for every git operation on it.
type Manager struct {
	tokenSource oauth2.TokenSource
	authorName  string
	authorEmail string

	path string
	repo *git.Repository
}

// Options configures a Manager.
type Options struct {
	// TokenSource must allow cloning from and pushing to the repository.
	TokenSource oauth2.TokenSource

	// AuthorName and AuthorEmail form the commit identity. When AuthorEmail
	// is empty it is derived from AuthorName.
	AuthorName  string
	AuthorEmail string

	// Dir is an existing local checkout to reuse. When empty, Open clones
	// RemoteURL into a fresh temp directory.
	Dir string

	// RemoteURL is the clone URL, required only when Dir is empty.
	RemoteURL string
}

// Open opens an existing checkout or clones a fresh one into a temp
// directory, depending on whether opts.Dir is set.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if opts.TokenSource == nil {
		return nil, errors.New("token source cannot be nil")
	}
	name := strings.TrimSpace(opts.AuthorName)
	if name == "" {
		return nil, errors.New("author name cannot be empty")
	}
	email := strings.TrimSpace(opts.AuthorEmail)
	if email == "" {
		email = fmt.Sprintf("%s@users.noreply.github.com", strings.TrimSuffix(name, "[bot]"))
	}

	m := &Manager{
		tokenSource: opts.TokenSource,
		authorName:  name,
		authorEmail: email,
	}

	if opts.Dir != "" {
		repo, err := git.PlainOpen(opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening repo at %s: %w", opts.Dir, err)
		}
		m.path = opts.Dir
		m.repo = repo
		return m, nil
	}

	if opts.RemoteURL == "" {
		return nil, errors.New("remote URL required when no local dir is given")
	}

	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	clog.FromContext(ctx).Infof("Cloning repository %s into %s", opts.RemoteURL, dir)
	auth, err := m.auth()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("getting token: %w", err)
	}

	repo, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:  opts.RemoteURL,
		Auth: auth,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	m.path = dir
	m.repo = repo
	return m, nil
}

// Path returns the absolute path of the working tree.
func (m *Manager) Path() string { return m.path }

// Repo returns the underlying git repository.
func (m *Manager) Repo() *git.Repository { return m.repo }

func (m *Manager) auth() (*githttp.BasicAuth, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (m *Manager) CurrentBranch() (string, error) {
	head, err := m.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is not a branch: %s", head.Name())
	}
	return head.Name().Short(), nil
}

// Fetch updates remote-tracking refs from origin.
func (m *Manager) Fetch(ctx context.Context) error {
	auth, err := m.auth()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}
	clog.FromContext(ctx).Debugf("Fetching origin")
	if err := m.repo.Fetch(&git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Auth:     auth,
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching origin: %w", err)
	}
	return nil
}

// CheckoutBranch makes branch the checked-out branch. Resolution order:
// an existing local branch, then a remote-tracking branch on origin, then a
// fresh branch created at the tip of base. Branch creation prefers the
// freshly fetched origin/<base> over a possibly stale local base ref. The
// tried-and-failed steps are not errors, only the final fallback failing is.
func (m *Manager) CheckoutBranch(ctx context.Context, branch, base string) error {
	log := clog.FromContext(ctx)
	worktree, err := m.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	refName := plumbing.NewBranchReferenceName(branch)
	if _, err := m.repo.Reference(refName, true); err == nil {
		log.Debugf("Checking out existing local branch %s", branch)
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
			return fmt.Errorf("checking out %s: %w", branch, err)
		}
		return nil
	}

	if remoteRef, err := m.repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true); err == nil {
		log.Debugf("Creating local branch %s from origin/%s", branch, branch)
		if err := m.repo.Storer.SetReference(plumbing.NewHashReference(refName, remoteRef.Hash())); err != nil {
			return fmt.Errorf("setting branch reference: %w", err)
		}
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
			return fmt.Errorf("checking out %s: %w", branch, err)
		}
		return nil
	}

	baseRef, err := m.repo.Reference(plumbing.NewRemoteReferenceName("origin", base), true)
	if err != nil {
		if baseRef, err = m.repo.Reference(plumbing.NewBranchReferenceName(base), true); err != nil {
			return fmt.Errorf("resolving base branch %s: %w", base, err)
		}
	}
	log.Infof("Creating branch %s from %s", branch, base)
	if err := m.repo.Storer.SetReference(plumbing.NewHashReference(refName, baseRef.Hash())); err != nil {
		return fmt.Errorf("setting branch reference: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", branch, err)
	}
	return nil
}

// PullFF fast-forwards the current branch from origin. Already-up-to-date is
// not an error; a divergent branch is.
func (m *Manager) PullFF(ctx context.Context) error {
	auth, err := m.auth()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}
	worktree, err := m.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.Pull(&git.PullOptions{
		RemoteName: "origin",
		Auth:       auth,
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pulling: %w", err)
	}
	return nil
}

// TrackedFiles lists the paths tracked at HEAD, sorted.
func (m *Manager) TrackedFiles() ([]string, error) {
	head, err := m.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := m.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("getting commit object: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting tree: %w", err)
	}

	var files []string
	if err := tree.Files().ForEach(func(f *object.File) error {
		files = append(files, f.Name)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walking tree: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadFileBounded reads a file from the working tree, truncating oversized
// content and appending a marker so the reader knows the tail is missing.
// A missing file reads as empty.
func (m *Manager) ReadFileBounded(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.path, path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > fileReadLimit {
		return string(data[:fileReadLimit]) + truncationMarker, nil
	}
	return string(data), nil
}

// WriteFile replaces a file's content in the working tree, creating parent
// directories as needed.
func (m *Manager) WriteFile(path, content string) error {
	full := filepath.Join(m.path, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating parent dirs for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Dirty reports whether the working tree has uncommitted changes.
func (m *Manager) Dirty() (bool, error) {
	worktree, err := m.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("getting worktree status: %w", err)
	}
	return !status.IsClean(), nil
}

// ResetHard discards all uncommitted changes and untracked files.
func (m *Manager) ResetHard() error {
	worktree, err := m.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting worktree: %w", err)
	}
	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning worktree: %w", err)
	}
	return nil
}

// CommitAll stages every change in the working tree and commits it with the
// manager's identity. Returns the new commit hash.
func (m *Manager) CommitAll(message string) (string, error) {
	if message == "" {
		return "", errors.New("commit message cannot be empty")
	}
	worktree, err := m.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  m.authorName,
			Email: m.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

// Push pushes the current branch to origin, force-updating the remote ref.
func (m *Manager) Push(ctx context.Context) error {
	log := clog.FromContext(ctx)

	branch, err := m.CurrentBranch()
	if err != nil {
		return err
	}
	auth, err := m.auth()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
	log.Infof("Pushing %s", refSpec)

	if err := m.repo.Push(&git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		Force:      true,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Infof("Branch already up to date")
			return nil
		}
		return fmt.Errorf("pushing: %w", err)
	}
	return nil
}

// DiffRange returns the unified diff between two commit-ish refs, typically
// a base branch tip and HEAD.
func (m *Manager) DiffRange(from, to string) (string, error) {
	fromHash, err := m.resolve(from)
	if err != nil {
		return "", err
	}
	toHash, err := m.resolve(to)
	if err != nil {
		return "", err
	}

	fromCommit, err := m.repo.CommitObject(fromHash)
	if err != nil {
		return "", fmt.Errorf("getting commit %s: %w", from, err)
	}
	toCommit, err := m.repo.CommitObject(toHash)
	if err != nil {
		return "", fmt.Errorf("getting commit %s: %w", to, err)
	}

	patch, err := fromCommit.Patch(toCommit)
	if err != nil {
		return "", fmt.Errorf("computing patch %s..%s: %w", from, to, err)
	}
	return patch.String(), nil
}

// resolve turns a branch name, remote branch, or hex hash into a commit hash.
func (m *Manager) resolve(rev string) (plumbing.Hash, error) {
	if ref, err := m.repo.Reference(plumbing.NewBranchReferenceName(rev), true); err == nil {
		return ref.Hash(), nil
	}
	if ref, err := m.repo.Reference(plumbing.NewRemoteReferenceName("origin", rev), true); err == nil {
		return ref.Hash(), nil
	}
	if rev == "HEAD" {
		head, err := m.repo.Head()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("resolving HEAD: %w", err)
		}
		return head.Hash(), nil
	}
	if hash := plumbing.NewHash(rev); !hash.IsZero() {
		return hash, nil
	}
	return plumbing.ZeroHash, fmt.Errorf("cannot resolve revision %q", rev)
}
