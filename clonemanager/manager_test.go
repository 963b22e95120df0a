/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/oauth2"
)

func staticTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

func initTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	for path, content := range map[string]string{
		"README.md":   "# demo\n",
		"pkg/main.go": "package main\n\nfunc main() {}\n",
	} {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add(filepath.ToSlash(path)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if _, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	return dir
}

func openTestManager(t *testing.T) *Manager {
	t.Helper()

	dir := initTestRepo(t)
	mgr, err := Open(context.Background(), Options{
		TokenSource: staticTokenSource(""),
		AuthorName:  "clonemanager-test",
		Dir:         dir,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return mgr
}

func TestTrackedFiles(t *testing.T) {
	mgr := openTestManager(t)

	files, err := mgr.TrackedFiles()
	if err != nil {
		t.Fatalf("TrackedFiles: %v", err)
	}
	want := []string{"README.md", "pkg/main.go"}
	if len(files) != len(want) {
		t.Fatalf("TrackedFiles = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("TrackedFiles[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestReadFileBounded(t *testing.T) {
	mgr := openTestManager(t)

	content, err := mgr.ReadFileBounded("README.md")
	if err != nil {
		t.Fatalf("ReadFileBounded: %v", err)
	}
	if content != "# demo\n" {
		t.Errorf("ReadFileBounded = %q", content)
	}

	// Missing files read as empty rather than erroring.
	if content, err = mgr.ReadFileBounded("nope.txt"); err != nil || content != "" {
		t.Errorf("ReadFileBounded(missing) = %q, %v", content, err)
	}

	big := strings.Repeat("a", fileReadLimit+100)
	if err := mgr.WriteFile("big.txt", big); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	content, err = mgr.ReadFileBounded("big.txt")
	if err != nil {
		t.Fatalf("ReadFileBounded(big): %v", err)
	}
	if !strings.HasSuffix(content, truncationMarker) {
		t.Errorf("expected truncation marker on oversized read")
	}
	if len(content) != fileReadLimit+len(truncationMarker) {
		t.Errorf("len = %d, want %d", len(content), fileReadLimit+len(truncationMarker))
	}
}

func TestDirtyCommitAll(t *testing.T) {
	mgr := openTestManager(t)

	dirty, err := mgr.Dirty()
	if err != nil {
		t.Fatalf("Dirty: %v", err)
	}
	if dirty {
		t.Fatalf("fresh checkout should be clean")
	}

	if err := mgr.WriteFile("pkg/new.go", "package pkg\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if dirty, err = mgr.Dirty(); err != nil || !dirty {
		t.Fatalf("Dirty after write = %v, %v; want true", dirty, err)
	}

	hash, err := mgr.CommitAll("add new file")
	if err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty commit hash")
	}

	if dirty, err = mgr.Dirty(); err != nil || dirty {
		t.Fatalf("Dirty after commit = %v, %v; want false", dirty, err)
	}

	if _, err := mgr.CommitAll(""); err == nil {
		t.Fatalf("CommitAll with empty message should fail")
	}
}

func TestResetHard(t *testing.T) {
	mgr := openTestManager(t)

	// A partial apply leaves both modified tracked files and untracked
	// artifacts; ResetHard must clear both.
	if err := mgr.WriteFile("README.md", "# demo\n\nmangled\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := mgr.WriteFile("pkg/main.go.rej", "rejected hunk\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if dirty, err := mgr.Dirty(); err != nil || !dirty {
		t.Fatalf("Dirty = %v, %v; want true", dirty, err)
	}

	if err := mgr.ResetHard(); err != nil {
		t.Fatalf("ResetHard: %v", err)
	}

	if dirty, err := mgr.Dirty(); err != nil || dirty {
		t.Fatalf("Dirty after reset = %v, %v; want false", dirty, err)
	}
	if content, err := mgr.ReadFileBounded("README.md"); err != nil || content != "# demo\n" {
		t.Fatalf("README after reset = %q, %v", content, err)
	}
	if rejects, err := mgr.RejectArtifacts(); err != nil || len(rejects) != 0 {
		t.Fatalf("RejectArtifacts after reset = %v, %v; want none", rejects, err)
	}
}

func TestCheckoutBranchFallbacks(t *testing.T) {
	ctx := context.Background()
	mgr := openTestManager(t)

	base, err := mgr.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}

	// No local or remote branch exists, so this exercises the create-from-base
	// fallback.
	if err := mgr.CheckoutBranch(ctx, "agent/issue-7", base); err != nil {
		t.Fatalf("CheckoutBranch: %v", err)
	}
	if branch, err := mgr.CurrentBranch(); err != nil || branch != "agent/issue-7" {
		t.Fatalf("CurrentBranch = %q, %v", branch, err)
	}

	// Now the branch exists locally; checking it out again must not recreate it.
	if err := mgr.WriteFile("marker.txt", "x\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := mgr.CommitAll("marker"); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if err := mgr.CheckoutBranch(ctx, base, base); err != nil {
		t.Fatalf("CheckoutBranch base: %v", err)
	}
	if err := mgr.CheckoutBranch(ctx, "agent/issue-7", base); err != nil {
		t.Fatalf("CheckoutBranch existing: %v", err)
	}
	content, err := mgr.ReadFileBounded("marker.txt")
	if err != nil || content != "x\n" {
		t.Fatalf("marker after re-checkout = %q, %v", content, err)
	}

	if err := mgr.CheckoutBranch(ctx, "agent/issue-8", "no-such-base"); err == nil {
		t.Fatalf("expected error for missing base branch")
	}
}

func TestCheckoutBranchPrefersFetchedBase(t *testing.T) {
	ctx := context.Background()
	mgr := openTestManager(t)

	base, err := mgr.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	staleHead, err := mgr.Repo().Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	staleHash := staleHead.Hash()

	// Advance the base by one commit and record it as the remote-tracking
	// ref, then wind the local base back, simulating a reused checkout whose
	// local base lags behind a fresh fetch.
	if err := mgr.WriteFile("CHANGELOG.md", "upstream moved\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fetchedHashStr, err := mgr.CommitAll("upstream commit")
	if err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	fetchedHash := plumbing.NewHash(fetchedHashStr)

	repo := mgr.Repo()
	remoteRef := plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", base), fetchedHash)
	if err := repo.Storer.SetReference(remoteRef); err != nil {
		t.Fatalf("SetReference: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: staleHash, Mode: git.HardReset}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if err := mgr.CheckoutBranch(ctx, "agent/issue-9", base); err != nil {
		t.Fatalf("CheckoutBranch: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Hash() != fetchedHash {
		t.Fatalf("new branch at %s, want fetched base %s (stale local base was %s)",
			head.Hash(), fetchedHash, staleHash)
	}
}

func TestDiffRange(t *testing.T) {
	ctx := context.Background()
	mgr := openTestManager(t)

	base, err := mgr.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if err := mgr.CheckoutBranch(ctx, "agent/issue-1", base); err != nil {
		t.Fatalf("CheckoutBranch: %v", err)
	}
	if err := mgr.WriteFile("README.md", "# demo\n\nupdated\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := mgr.CommitAll("update readme"); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}

	diff, err := mgr.DiffRange(base, "HEAD")
	if err != nil {
		t.Fatalf("DiffRange: %v", err)
	}
	if !strings.Contains(diff, "README.md") || !strings.Contains(diff, "+updated") {
		t.Errorf("DiffRange missing expected content:\n%s", diff)
	}
}

func TestApplyPatch(t *testing.T) {
	ctx := context.Background()
	mgr := openTestManager(t)

	diff := `diff --git a/README.md b/README.md
--- a/README.md
+++ b/README.md
@@ -1 +1,2 @@
 # demo
+patched
`
	if err := mgr.ApplyPatch(ctx, diff); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	content, err := mgr.ReadFileBounded("README.md")
	if err != nil {
		t.Fatalf("ReadFileBounded: %v", err)
	}
	if !strings.Contains(content, "patched") {
		t.Errorf("patch did not land, content %q", content)
	}

	rejects, err := mgr.RejectArtifacts()
	if err != nil {
		t.Fatalf("RejectArtifacts: %v", err)
	}
	if len(rejects) != 0 {
		t.Errorf("unexpected rejects: %v", rejects)
	}
}

func TestApplyPatchGarbage(t *testing.T) {
	ctx := context.Background()
	mgr := openTestManager(t)

	err := mgr.ApplyPatch(ctx, "this is not a diff\n")
	if err == nil {
		t.Fatalf("expected error for garbage input")
	}
	var applyErr *ApplyError
	if !errors.As(err, &applyErr) {
		t.Fatalf("expected *ApplyError, got %T", err)
	}
	if !strings.Contains(err.Error(), "git apply") {
		t.Errorf("error text = %v", err)
	}
}
