package git

import (
	"context"
	"strings"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
	"golang.org/x/sync/errgroup"
)

// FileStatus is one line of porcelain status.
type FileStatus struct {
	Path         string `json:"path"`
	Status       string `json:"status"` // M, A, D, R, ??, etc.
	IsStaged     bool   `json:"is_staged"`
	IsUntracked  bool   `json:"is_untracked"`
	IsConflicted bool   `json:"is_conflicted"`
}

// StatusReader computes the working-tree summary published to rooms.
type StatusReader struct {
	runner Runner
	facts  *FactCache
}

// NewStatusReader creates a StatusReader. Branch and sync facts come from facts.
func NewStatusReader(runner Runner, facts *FactCache) *StatusReader {
	return &StatusReader{runner: runner, facts: facts}
}

// Facts returns the cache backing the reader.
func (s *StatusReader) Facts() *FactCache {
	return s.facts
}

// Status runs porcelain status and the ahead/behind lookup concurrently and
// merges them.
func (s *StatusReader) Status(ctx context.Context, force bool) (events.GitStatusPayload, error) {
	dir := s.facts.Dir()
	var (
		files  []FileStatus
		branch string
		status events.GitStatusPayload
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.runner.Run(gctx, dir, "status", "--porcelain", "-uall")
		if err != nil {
			return err
		}
		files = parseStatus(out)
		return nil
	})
	g.Go(func() error {
		var err error
		if branch, err = s.facts.CurrentBranch(gctx, force); err != nil {
			return err
		}
		ab, err := s.facts.AheadBehind(gctx, force)
		if err != nil {
			return err
		}
		status.HasUpstream = ab.HasUpstream
		status.Upstream = ab.UpstreamBranch
		status.Ahead = ab.Ahead
		status.Behind = ab.Behind
		return nil
	})
	if err := g.Wait(); err != nil {
		return events.GitStatusPayload{}, domain.NewGitError("status", err)
	}

	status.Branch = branch
	status.ChangedFiles = make([]string, 0, len(files))
	for _, f := range files {
		switch {
		case f.IsConflicted:
			status.HasConflicts = true
		case f.IsUntracked:
			status.UntrackedCount++
		default:
			if f.IsStaged {
				status.StagedCount++
			}
			if f.Status[1] != ' ' {
				status.UnstagedCount++
			}
		}
		status.ChangedFiles = append(status.ChangedFiles, f.Path)
	}
	return status, nil
}

// parseStatus parses git status porcelain output.
func parseStatus(output string) []FileStatus {
	// Initialize to empty slice (not nil) so JSON marshals to [] not null
	files := make([]FileStatus, 0)

	// Only trim the trailing newline; leading spaces are significant in porcelain format
	lines := strings.Split(strings.TrimSuffix(output, "\n"), "\n")
	for _, line := range lines {
		if len(line) < 4 {
			continue
		}

		// XY PATH, X = staged status, Y = unstaged status
		staged := line[0]
		unstaged := line[1]
		path := strings.TrimLeft(line[2:], " ")

		// Renames: XY old -> new
		if strings.Contains(path, " -> ") {
			parts := strings.Split(path, " -> ")
			path = parts[len(parts)-1]
		}

		files = append(files, FileStatus{
			Path:         path,
			Status:       string([]byte{staged, unstaged}),
			IsStaged:     staged != ' ' && staged != '?',
			IsUntracked:  staged == '?' && unstaged == '?',
			IsConflicted: isConflict(staged, unstaged),
		})
	}

	return files
}

func isConflict(x, y byte) bool {
	return x == 'U' || y == 'U' || (x == 'A' && y == 'A') || (x == 'D' && y == 'D')
}
