package metrics

import (
	"strings"
	"testing"
)

func TestParseGitLog(t *testing.T) {
	out := strings.Join([]string{
		"\x00aaa111\x1f2025-01-01T10:15:00Z\x1fAlex\x1fadd parser",
		"10\t2\tparser.go",
		"5\t0\tparser_test.go",
		"",
		"\x00bbb222\x1f2025-01-01T10:05:00Z\x1fAlex\x1finitial commit",
		"-\t-\tassets/logo.png",
	}, "\n")

	commits := parseGitLog([]byte(out))
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}

	first := commits[0]
	if first.Hash != "aaa111" || first.Author != "Alex" || first.Message != "add parser" {
		t.Errorf("first commit = %+v", first)
	}
	if first.FilesChanged != 2 || first.Insertions != 15 || first.Deletions != 2 {
		t.Errorf("first numstat = %+v", first)
	}

	// Binary files count as changed without line stats.
	second := commits[1]
	if second.FilesChanged != 1 || second.Insertions != 0 || second.Deletions != 0 {
		t.Errorf("binary numstat = %+v", second)
	}
}

func TestParseGitLog_SkipsBadRecords(t *testing.T) {
	out := strings.Join([]string{
		"\x00broken-record-without-fields",
		"3\t1\tshould-be-ignored.go",
		"\x00ccc333\x1f2025-01-01T10:00:00Z\x1fSam\x1fgood commit",
		"1\t1\tmain.go",
	}, "\n")

	commits := parseGitLog([]byte(out))
	if len(commits) != 1 {
		t.Fatalf("got %d commits, want 1 (bad record skipped)", len(commits))
	}
	if commits[0].Hash != "ccc333" || commits[0].FilesChanged != 1 {
		t.Errorf("commit = %+v", commits[0])
	}
}

func TestParseGitLog_Empty(t *testing.T) {
	if commits := parseGitLog(nil); len(commits) != 0 {
		t.Errorf("empty log produced commits: %+v", commits)
	}
}

func TestReadGitCommits_NotARepo(t *testing.T) {
	if commits := ReadGitCommits(t.TempDir(), ts(t, "2025-01-01T00:00:00Z")); commits != nil {
		t.Errorf("non-repo directory produced commits: %+v", commits)
	}
}
