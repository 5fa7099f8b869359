package action

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// ApplyResult is the aggregate result of applying a series to one tree.
// Conflicts lists the paths left unmerged, if any.
type ApplyResult struct {
	Applied   int
	Conflicts []string
}

// Applier applies an ordered sequence of raw patch mails to a tree.
type Applier interface {
	// Available reports a ToolError with Missing set when the tool cannot
	// be found.
	Available() error
	Apply(ctx context.Context, target domain.TreeTarget, patches [][]byte) (ApplyResult, error)
}

const mboxSeparator = "From git@z Thu Jan  1 00:00:00 1970\n"

var mboxFromRE = regexp.MustCompile(`(?m)^(>*From )`)

// FormatMbox concatenates raw mails into an mboxrd stream in the given
// order, quoting body lines that start with "From ".
func FormatMbox(mails [][]byte) []byte {
	var buf bytes.Buffer
	for _, m := range mails {
		buf.WriteString(mboxSeparator)
		buf.Write(mboxFromRE.ReplaceAll(m, []byte(">$1")))
		if !bytes.HasSuffix(m, []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// GitApplier applies series with "git am --3way". A three-way merge that
// stops on conflicts is left in progress for the user to resolve; any
// other failure is aborted so the tree is left as it was.
type GitApplier struct {
	Git    string
	Logger *slog.Logger
}

func (a *GitApplier) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.Logger
}

func (a *GitApplier) Available() error {
	_, err := lookGit(a.Git, "git am")
	return err
}

func (a *GitApplier) Apply(ctx context.Context, target domain.TreeTarget, patches [][]byte) (ApplyResult, error) {
	git, err := lookGit(a.Git, "git am")
	if err != nil {
		return ApplyResult{}, err
	}
	if fi, err := os.Stat(target.Path); err != nil || !fi.IsDir() {
		return ApplyResult{}, &ToolError{Tool: "git am", Detail: fmt.Sprintf("target path %s is not a directory", target.Path), Err: err}
	}
	repo := &repository{git: git, dir: target.Path}

	if target.Branch != "" {
		if _, stderr, err := repo.run(ctx, nil, "checkout", target.Branch); err != nil {
			return ApplyResult{}, &ToolError{Tool: "git checkout", Detail: stderr, Err: err}
		}
	}

	_, stderr, err := repo.run(ctx, bytes.NewReader(FormatMbox(patches)), "am", "--3way", "--patch-format=mboxrd")
	if err == nil {
		a.logger().Info("series applied", "target", target.Name, "patches", len(patches))
		return ApplyResult{Applied: len(patches)}, nil
	}

	out, _, uerr := repo.run(ctx, nil, "diff", "--name-only", "--diff-filter=U")
	if uerr == nil {
		if files := strings.Fields(out); len(files) > 0 {
			a.logger().Warn("series applied with conflicts", "target", target.Name, "files", files)
			return ApplyResult{Conflicts: files}, nil
		}
	}

	if _, abortErr, aerr := repo.run(ctx, nil, "am", "--abort"); aerr != nil {
		a.logger().Warn("git am --abort failed", "target", target.Name, "stderr", abortErr)
	}
	return ApplyResult{}, &ToolError{Tool: "git am", Detail: firstLine(stderr), Err: err}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
