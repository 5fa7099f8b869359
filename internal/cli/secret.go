package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lu-zhengda/loreterm/internal/store"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage credentials kept in the OS keyring",
	}
	cmd.AddCommand(newSetSMTPPasswordCmd())
	cmd.AddCommand(newDeleteSMTPPasswordCmd())
	return cmd
}

func newSetSMTPPasswordCmd() *cobra.Command {
	var identityFlag, fileFlag string

	cmd := &cobra.Command{
		Use:   "set-smtp-password",
		Short: "Store the SMTP password git send-email uses for the replier identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				identity := identityFlag
				if identity == "" {
					var err error
					if identity, err = s.svc.Identity(cmd.Context()); err != nil {
						return err
					}
				}
				password, err := readPassword(cmd, fileFlag)
				if err != nil {
					return err
				}
				if err := store.NewKeyringSecretStore().SaveSMTPPassword(identity, password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "SMTP password stored for %s.\n", identity)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&identityFlag, "identity", "", "sender identity (defaults to reply.identity or git user)")
	cmd.Flags().StringVar(&fileFlag, "password-file", "", "read the password from a file instead of prompting ('-' for stdin)")
	return cmd
}

func newDeleteSMTPPasswordCmd() *cobra.Command {
	var identityFlag string

	cmd := &cobra.Command{
		Use:   "delete-smtp-password",
		Short: "Remove the stored SMTP password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(s *session) error {
				identity := identityFlag
				if identity == "" {
					var err error
					if identity, err = s.svc.Identity(cmd.Context()); err != nil {
						return err
					}
				}
				if err := store.NewKeyringSecretStore().DeleteSMTPPassword(identity); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "SMTP password removed for %s.\n", identity)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&identityFlag, "identity", "", "sender identity (defaults to reply.identity or git user)")
	return cmd
}

// readPassword reads from path, from stdin for "-", or prompts on the
// terminal with echo disabled.
func readPassword(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	switch path {
	case "":
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal available for the password prompt (use --password-file)")
		}
		fmt.Fprint(cmd.ErrOrStderr(), "SMTP password: ")
		data, err = term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
	case "-":
		data, err = io.ReadAll(cmd.InOrStdin())
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	data = bytes.TrimRight(data, "\r\n")
	if len(data) == 0 {
		return "", fmt.Errorf("empty password")
	}
	return string(data), nil
}
