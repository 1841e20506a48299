package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vasu1712/scenyx-securechat/internal/backend"
	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/keys"
	"github.com/Vasu1712/scenyx-securechat/internal/session"
)

var (
	keygenOut      string
	keygenBits     int
	keygenRegister bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key pair and optionally publish the public half",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := keygenOut
		if out == "" {
			out = cfg.KeyFile
		}
		key, err := crypto.GenerateKeyPair(keygenBits)
		if err != nil {
			return err
		}
		if err := crypto.SaveKeyFile(out, crypto.ExportPrivateKeyPEM(key)); err != nil {
			return err
		}
		pub, err := crypto.ExportPublicKeyPEM(&key.PublicKey)
		if err != nil {
			return err
		}
		logrus.WithField("file", out).Info("private key written")
		fmt.Fprint(cmd.OutOrStdout(), string(pub))

		if !keygenRegister {
			return nil
		}
		ident, err := session.IdentityFromToken(cfg.Token)
		if err != nil {
			return fmt.Errorf("CHAT_TOKEN: %w", err)
		}
		api, err := backend.New(cfg.APIBase, cfg.Token, nil)
		if err != nil {
			return err
		}
		if err := api.RegisterPublicKey(cmd.Context(), pub); err != nil {
			return err
		}
		if cfg.ValkeyAddr != "" {
			dir, err := keys.DialValkey(cfg.ValkeyAddr)
			if err != nil {
				return err
			}
			defer dir.Close()
			if err := dir.Publish(cmd.Context(), ident.UserID, pub); err != nil {
				return err
			}
		}
		logrus.WithField("user_id", ident.UserID).Info("public key registered")
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "private key file (default CHAT_KEY_FILE)")
	keygenCmd.Flags().IntVar(&keygenBits, "bits", crypto.DefaultKeyBits, "RSA modulus size")
	keygenCmd.Flags().BoolVar(&keygenRegister, "register", false, "publish the public key with CHAT_TOKEN")
	rootCmd.AddCommand(keygenCmd)
}
