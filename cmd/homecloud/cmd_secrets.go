package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/slipstream/homecloud/internal/auth"
	"github.com/slipstream/homecloud/internal/crypto"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt <value>",
	Short: "Encrypt a cookie value for the config file",
	Long: `Encrypt a session cookie value with session.passphrase and session.salt.
Paste the printed enc:v1: value into session.session_id, session.user_id or
session.cookies in place of the plaintext.`,
	Args: cobra.ExactArgs(1),
	RunE: runEncrypt,
}

var saltCmd = &cobra.Command{
	Use:   "gen-salt",
	Short: "Generate a random value for session.salt",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), crypto.EncodeSalt(salt))
		return err
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "token lifetime")
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	if cfg.Session.Passphrase == "" || cfg.Session.Salt == "" {
		return errors.New("session.passphrase and session.salt must be configured (see gen-salt)")
	}
	salt, err := crypto.DecodeSalt(cfg.Session.Salt)
	if err != nil {
		return fmt.Errorf("invalid session.salt: %w", err)
	}

	encrypted, err := crypto.NewSecretStore(cfg.Session.Passphrase, salt).Encrypt(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), encrypted)
	return err
}

func runToken(cmd *cobra.Command, args []string) error {
	svc, err := auth.NewService(cfg.Server.JWTSecret)
	if err != nil {
		return fmt.Errorf("server.jwt_secret: %w", err)
	}

	token, err := svc.GenerateToken(tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
