package action

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// repository runs git against one directory via "git -C <dir>".
type repository struct {
	git string
	dir string
	env []string
}

// run executes git with args, feeding stdin if non-nil. Stderr is captured
// separately and returned so callers can report it.
func (r *repository) run(ctx context.Context, stdin io.Reader, args ...string) (stdout, stderr string, err error) {
	fullArgs := args
	if r.dir != "" {
		fullArgs = append([]string{"-C", r.dir}, args...)
	}
	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, r.git, fullArgs...)
	cmd.Stdin = stdin
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	err = cmd.Run()
	stdout, stderr = outBuf.String(), strings.TrimSpace(errBuf.String())
	if err != nil {
		err = fmt.Errorf("git %s in %s: %w (stderr: %s)", strings.Join(args, " "), r.dir, err, stderr)
	}
	return stdout, stderr, err
}

// lookGit resolves the git binary, reporting a missing binary as a
// ToolError for tool.
func lookGit(git, tool string) (string, error) {
	if git == "" {
		git = "git"
	}
	path, err := exec.LookPath(git)
	if err != nil {
		return "", &ToolError{Tool: tool, Missing: true, Err: err}
	}
	return path, nil
}

// GitIdentity returns "Name <email>" from git's user.name and user.email
// as seen from dir. An empty dir uses the global configuration.
func GitIdentity(ctx context.Context, dir string) (string, error) {
	git, err := lookGit("git", "git")
	if err != nil {
		return "", err
	}
	r := &repository{git: git, dir: dir}
	name, _, _ := r.run(ctx, nil, "config", "user.name")
	email, _, err := r.run(ctx, nil, "config", "user.email")
	email = strings.TrimSpace(email)
	if err != nil || email == "" {
		return "", fmt.Errorf("failed to resolve identity: git user.email is not set")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return email, nil
	}
	return name + " <" + email + ">", nil
}
