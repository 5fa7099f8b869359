package action

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Mailer dispatches a composed mail. With dryRun the tool is still run
// but told not to send.
type Mailer interface {
	Available() error
	Send(ctx context.Context, msg []byte, dryRun bool) error
}

// SendEmail dispatches mail through "git send-email".
type SendEmail struct {
	Git string
	// Args are extra send-email arguments, such as --smtp-server.
	Args []string
	// Password, when set, is passed to git as sendemail.smtpPass through
	// the environment, never on the command line.
	Password string
	// TempDir holds the message files handed to git; empty means os.TempDir.
	TempDir string
	Logger  *slog.Logger
}

func (s *SendEmail) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Available checks for git and its send-email helper, which many
// distributions package separately.
func (s *SendEmail) Available() error {
	git, err := lookGit(s.Git, "git send-email")
	if err != nil {
		return err
	}
	r := &repository{git: git}
	out, _, err := r.run(context.Background(), nil, "--exec-path")
	if err != nil {
		return &ToolError{Tool: "git send-email", Missing: true, Err: err}
	}
	helper := filepath.Join(strings.TrimSpace(out), "git-send-email")
	if _, err := os.Stat(helper); err != nil {
		return &ToolError{Tool: "git send-email", Missing: true, Err: err}
	}
	return nil
}

func (s *SendEmail) Send(ctx context.Context, msg []byte, dryRun bool) error {
	git, err := lookGit(s.Git, "git send-email")
	if err != nil {
		return err
	}

	dir := s.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "loreterm-reply-"+uuid.NewString()+".eml")
	if err := os.WriteFile(path, msg, 0o600); err != nil {
		return fmt.Errorf("failed to write reply file: %w", err)
	}
	defer os.Remove(path)

	args := []string{"send-email", "--confirm=never", "--quiet"}
	if dryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, s.Args...)
	args = append(args, path)

	r := &repository{git: git}
	if s.Password != "" {
		r.env = []string{
			"GIT_CONFIG_COUNT=1",
			"GIT_CONFIG_KEY_0=sendemail.smtpPass",
			"GIT_CONFIG_VALUE_0=" + s.Password,
		}
	}
	if _, stderr, err := r.run(ctx, nil, args...); err != nil {
		return &ToolError{Tool: "git send-email", Detail: firstLine(stderr), Err: err}
	}
	s.logger().Info("reply dispatched", "dry_run", dryRun, "bytes", len(msg))
	return nil
}
