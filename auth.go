package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-uploader/internal/auth"
	"github.com/tonimelisma/onedrive-uploader/internal/config"
	"github.com/tonimelisma/onedrive-uploader/internal/tokenstore"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize the uploader and save tokens",
		Long: `Run the interactive authorization flow and store the resulting tokens.
With auth.prompt = "paste", open the printed URL, sign in, and paste the URL
the browser lands on. With auth.prompt = "callback", the redirect is captured
by a local listener on auth.redirect_uri.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete saved tokens",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := cc.Cfg.RequireCredentials(); err != nil {
		return err
	}

	a, err := newApp(cc, loginPrompter(cc))
	if err != nil {
		return err
	}

	cc.Logger.Info("login started")

	if err := a.tokens.Authorize(shutdownContext(cmd.Context(), cc.Logger)); err != nil {
		return err
	}

	cc.Logger.Info("login successful")
	cc.Statusf("Login successful.\n")

	return nil
}

// loginPrompter always prompts: an explicit login reads the pasted URL even
// when stdin is not a terminal.
func loginPrompter(cc *CLIContext) auth.Prompter {
	if cc.Cfg.Prompt == config.PromptCallback {
		return selectPrompter(cc.Cfg, os.Stdin, os.Stderr, cc.Logger)
	}

	return &auth.PastePrompter{In: os.Stdin, Out: os.Stderr}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	store, err := newTokenStore(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	cc.Logger.Info("logout started")

	if err := errors.Join(
		store.Delete(tokenstore.KindAccess),
		store.Delete(tokenstore.KindRefresh),
	); err != nil {
		return err
	}

	cc.Logger.Info("logout successful")
	cc.Statusf("Logged out.\n")

	return nil
}
