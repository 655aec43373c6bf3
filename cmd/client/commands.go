package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skillforge/internal/credential"
	"skillforge/internal/files"
	"skillforge/internal/render"
	"skillforge/internal/session"
)

func newRegisterCmd(a *app) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := a.terminal(cmd)
			if err != nil {
				return err
			}
			sess, err := a.newSession(view)
			if err != nil {
				return err
			}
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			pw, err := p.password(cmd.Context(), "Password: ")
			p.close()
			if err != nil {
				return err
			}
			return sess.Dispatch(cmd.Context(), session.ActionRegister, session.Input{
				Email:    email,
				Password: pw,
				Name:     name,
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newDecodeCmd(a *app) *cobra.Command {
	var verify bool
	var keyPath string
	cmd := &cobra.Command{
		Use:   "decode <jwt>",
		Short: "Show the contents of a verifiable credential",
		Long: `Decodes a credential JWT issued by the backend. With --verify the ES256
signature is checked against the issuer public key (--key, or issuer_key_path
from the config).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if !verify {
				c, err := credential.Decode(token)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), render.Credential(c, ""))
				return nil
			}

			if keyPath == "" {
				keyPath = a.cfg.IssuerKeyPath
			}
			if keyPath == "" {
				return fmt.Errorf("--verify needs an issuer key: pass --key or set issuer_key_path")
			}
			key, err := credential.LoadIssuerKey(keyPath)
			if err != nil {
				return err
			}
			c, err := credential.Verify(token, key)
			if err != nil {
				a.logger.Warn("credential verification failed", zap.Error(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Credential(c, "verified"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Check the signature against the issuer key")
	cmd.Flags().StringVar(&keyPath, "key", "", "Issuer public key (PEM)")
	return cmd
}

func newWalletCmd(a *app) *cobra.Command {
	wallet := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the local encrypted credential wallet",
	}

	wallet.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the wallet key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := files.GenerateWalletKey(a.cfg.WalletKeyPath); err != nil {
				return err
			}
			a.logger.Info("wallet key created", zap.String("path", a.cfg.WalletKeyPath))
			fmt.Fprintf(cmd.OutOrStdout(), "Wallet key written to %s\n", a.cfg.WalletKeyPath)
			return nil
		},
	})

	wallet.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.requireWallet()
			if err != nil {
				return err
			}
			entries, err := store.GetAll()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Wallet is empty")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSAVED\tQUEST\tACCOMPLISHMENT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.SavedAt.Format("2006-01-02 15:04"), orDash(e.QuestTitle), e.AccomplishmentID)
			}
			return w.Flush()
		},
	})

	wallet.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.requireWallet()
			if err != nil {
				return err
			}
			e, err := store.Get(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if c, err := credential.Decode(e.JWT); err == nil {
				fmt.Fprintln(out, render.Credential(c, ""))
			}
			fmt.Fprintln(out, e.JWT)
			return nil
		},
	})
	return wallet
}

func (a *app) requireWallet() (*files.WalletStore, error) {
	store, err := a.openWallet()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: run 'skillforge wallet init' first", files.ErrWalletKeyMissing)
	}
	return store, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
