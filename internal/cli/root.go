package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lu-zhengda/loreterm/internal/app"
	"github.com/lu-zhengda/loreterm/internal/config"
	"github.com/lu-zhengda/loreterm/internal/tui"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string

	// jsonFlag enables JSON output for all commands.
	jsonFlag bool
)

// isTerminal reports whether the interactive loop can own stdout.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

func NewRootCmd() *cobra.Command {
	var dumpConfig bool

	root := &cobra.Command{
		Use:   "loreterm",
		Short: "Terminal client for lore patch archives",
		Long: "Browse patch series on a public-inbox archive such as lore.kernel.org,\n" +
			"apply them to local trees and reply with review tags.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell, _ := cmd.Flags().GetString("generate-completion"); shell != "" {
				switch shell {
				case "bash":
					return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
				case "zsh":
					return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
				case "fish":
					return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
				default:
					return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", shell)
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dumpConfig {
				return dumpConfigTo(cmd.OutOrStdout(), cfg)
			}
			if !isTerminal() {
				return fmt.Errorf("loreterm needs a terminal; use a subcommand such as 'loreterm feed <list>'")
			}

			sess, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer sess.Close()
			return tui.Run(sess.svc, sess.logger)
		},
	}
	root.SetVersionTemplate("loreterm {{.Version}}\n")
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().String("generate-completion", "", "Generate shell completion (bash, zsh, fish)")
	root.Flags().MarkHidden("generate-completion")
	root.Flags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved configuration and exit")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	root.AddCommand(newListsCmd())
	root.AddCommand(newFeedCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newBookmarkCmd())
	root.AddCommand(newApplyCmd())
	root.AddCommand(newReplyCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newSecretCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the application configuration from the config file.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func dumpConfigTo(w io.Writer, cfg *config.Config) error {
	if jsonFlag {
		return fprintJSON(w, cfg)
	}
	data, err := cfg.Dump()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// session holds what one command invocation opens: the service and the
// log file.
type session struct {
	cfg     *config.Config
	svc     *app.Service
	logger  *slog.Logger
	logFile *os.File
}

// openSession opens the log, the cache and the data stores. Failing to
// create any of them is a startup failure.
func openSession(cfg *config.Config) (*session, error) {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger, f, err := app.OpenLog(config.DataDir(), app.NewOpID(), level)
	if err != nil {
		return nil, err
	}
	svc, err := app.Open(cfg, app.Options{Logger: logger})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	logger.Info("session started", "version", version)
	return &session{cfg: cfg, svc: svc, logger: logger, logFile: f}, nil
}

// withSession loads the config, opens a session and runs fn with it.
func withSession(fn func(*session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sess, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

func (s *session) Close() {
	if err := s.svc.Close(); err != nil {
		s.logger.Warn("failed to close cache index", "error", err)
	}
	s.logFile.Close()
}
