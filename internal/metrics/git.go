package metrics

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"phasewatch/internal/logger"
)

// GitCommit is one commit harvested from the repository log for phase
// attribution.
type GitCommit struct {
	Hash         string    `json:"hash"`
	Timestamp    time.Time `json:"timestamp"`
	Author       string    `json:"author"`
	Message      string    `json:"message"`
	FilesChanged int       `json:"files_changed"`
	Insertions   int       `json:"insertions"`
	Deletions    int       `json:"deletions"`
}

// gitLogFormat keeps one commit per record with a NUL separator so commit
// messages containing newlines cannot break parsing.
const gitLogFormat = "--format=%x00%H%x1f%aI%x1f%an%x1f%s"

// ReadGitCommits runs git log over the given range in repoDir and parses the
// result. since bounds the walk to commits after the run started; a
// zero value reads the whole history. A missing git binary or a directory
// that is not a repository yields no commits and a debug log, not an error:
// git evidence is supplementary.
func ReadGitCommits(repoDir string, since time.Time) []GitCommit {
	args := []string{"-C", repoDir, "log", "--numstat", gitLogFormat}
	if !since.IsZero() {
		args = append(args, "--since="+since.Format(time.RFC3339))
	}

	out, err := exec.Command("git", args...).Output()
	if err != nil {
		logger.Debug().Str("dir", repoDir).Err(err).Msg("Git history unavailable")
		return nil
	}
	return parseGitLog(out)
}

func parseGitLog(out []byte) []GitCommit {
	var commits []GitCommit
	var cur *GitCommit

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "\x00") {
			c, err := parseCommitHeader(strings.TrimPrefix(line, "\x00"))
			if err != nil {
				logger.Warn().Err(err).Msg("Skipping unparseable git log record")
				cur = nil
				continue
			}
			commits = append(commits, *c)
			cur = &commits[len(commits)-1]
			continue
		}
		if cur == nil {
			continue
		}
		applyNumstat(cur, line)
	}
	return commits
}

func parseCommitHeader(line string) (*GitCommit, error) {
	parts := strings.SplitN(line, "\x1f", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected 4 header fields, got %d", len(parts))
	}
	ts, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return nil, fmt.Errorf("commit %s timestamp: %w", parts[0], err)
	}
	return &GitCommit{
		Hash:      parts[0],
		Timestamp: ts,
		Author:    parts[2],
		Message:   parts[3],
	}, nil
}

// applyNumstat folds one numstat line (insertions, deletions, path) into the
// commit. Binary files report "-" for both counts and still count as a
// changed file.
func applyNumstat(c *GitCommit, line string) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return
	}
	c.FilesChanged++
	if n, err := strconv.Atoi(fields[0]); err == nil {
		c.Insertions += n
	}
	if n, err := strconv.Atoi(fields[1]); err == nil {
		c.Deletions += n
	}
}
