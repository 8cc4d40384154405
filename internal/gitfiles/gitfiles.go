// Package gitfiles enumerates the candidate file set for a run: all
// version-control tracked files plus untracked files that are not
// ignored, as repo-relative forward-slash paths.
package gitfiles

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// FindRoot locates the repository root containing startDir.
func FindRoot(startDir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(startDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("not a git repository (or any parent up to filesystem root): %s", startDir)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository worktree: %w", err)
	}
	return worktree.Filesystem.Root(), nil
}

// List returns the repository's tracked files plus untracked files not
// covered by ignore rules, sorted and deduplicated.
func List(gitRoot string) ([]string, error) {
	repo, err := git.PlainOpen(gitRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", gitRoot, err)
	}

	seen := map[string]struct{}{}

	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read repository index: %w", err)
	}
	for _, entry := range idx.Entries {
		seen[normalize(entry.Name)] = struct{}{}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to compute worktree status: %w", err)
	}
	for path, fileStatus := range status {
		if fileStatus.Worktree == git.Untracked {
			seen[normalize(path)] = struct{}{}
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// ReadPaths reads one file path per line, dropping empty lines and
// normalizing separators. Used for manually supplied file lists.
func ReadPaths(r io.Reader) ([]string, error) {
	var files []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		files = append(files, normalize(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file list: %w", err)
	}
	return files, nil
}

func normalize(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}
