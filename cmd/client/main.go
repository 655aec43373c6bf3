package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skillforge/internal/api"
	"skillforge/internal/config"
	"skillforge/internal/credential"
	"skillforge/internal/files"
	"skillforge/internal/render"
	"skillforge/internal/session"
	"skillforge/internal/utils"
)

// app carries flag values and everything built from them in
// PersistentPreRunE.
type app struct {
	configPath string
	server     string
	logFile    string
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "skillforge",
		Short: "Turn goals into quests and collect credentials for what you accomplish",
		Long: `skillforge talks to a SkillForge backend: register and log in, submit a goal
that the backend breaks into a quest plan, record accomplishments against the
active quest and receive a verifiable credential for each one.

Settings are read from ~/.skillforge/config.yaml, then SKILLFORGE_* environment
variables, then flags.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "Config file")
	root.PersistentFlags().StringVar(&a.server, "server", "", "Override server base URL (e.g. https://api.example.com)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Override log file path")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newShellCmd(a))
	root.AddCommand(newRegisterCmd(a))
	root.AddCommand(newDecodeCmd(a))
	root.AddCommand(newWalletCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.OverrideServer(a.server); err != nil {
		return err
	}
	if a.logFile != "" {
		cfg.LogFile = utils.ExpandHome(a.logFile)
	}
	if a.noColor {
		cfg.NoColor = true
	}
	a.cfg = cfg

	logger, err := utils.NewLogger(cfg.LogFile, a.verbose)
	if err != nil {
		return err
	}
	a.logger = logger.With(zap.String("command", cmd.Name()))
	a.logger.Debug("config loaded",
		zap.String("config", a.configPath),
		zap.String("server", cfg.Server),
		zap.Duration("timeout", cfg.Timeout))
	return nil
}

func (a *app) client() *api.Client {
	return api.NewClient(a.cfg.Server,
		api.WithLogger(a.logger),
		api.WithTimeout(a.cfg.Timeout))
}

func (a *app) terminal(cmd *cobra.Command) (*render.Terminal, error) {
	opts := []render.Option{render.WithPlain(a.cfg.NoColor)}
	if a.cfg.IssuerKeyPath != "" {
		key, err := credential.LoadIssuerKey(a.cfg.IssuerKeyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, render.WithIssuerKey(key))
	}
	return render.NewTerminal(cmd.OutOrStdout(), opts...), nil
}

// openWallet returns nil without error when no wallet key is configured.
func (a *app) openWallet() (*files.WalletStore, error) {
	key, err := files.ReadWalletKey(a.cfg.WalletKeyPath)
	if errors.Is(err, files.ErrWalletKeyMissing) {
		a.logger.Debug("wallet disabled", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return files.NewWalletStore(a.cfg.WalletPath, key)
}

func (a *app) newSession(view *render.Terminal) (*session.Session, error) {
	opts := []session.Option{session.WithLogger(a.logger)}
	wallet, err := a.openWallet()
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		opts = append(opts, session.WithWallet(wallet))
	}
	return session.New(a.client(), view, opts...), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
