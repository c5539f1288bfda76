package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create key material for a new user",
	Long: `Generates a fresh data encryption key, wraps it under a master key
derived from your passphrase, and stores the resulting key bundle.

Running init for a user that already has a bundle would orphan every value
encrypted under the old key, so an existing bundle must be removed
explicitly first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadBundle(); err == nil {
			return fmt.Errorf("user %q already has a key bundle; remove it explicitly before re-initializing", config.UserID)
		}

		password, err := readPassphraseConfirmed("Passphrase: ")
		if err != nil {
			return err
		}

		bundle, err := manager.InitializeUserKeys(config.UserID, password)
		if err != nil {
			return err
		}
		if err = saveBundle(bundle); err != nil {
			return err
		}

		fmt.Printf("Initialized key bundle for %s (version %d)\n", bundle.UserID, bundle.Version)
		return nil
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Change the passphrase without re-encrypting stored data",
	Long: `Re-wraps the data encryption key under a master key derived from a
new passphrase. The data key itself is unchanged, so every stored value
remains readable after rotation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := loadBundle()
		if err != nil {
			return err
		}

		oldPassword, err := readPassphrase("Current passphrase: ")
		if err != nil {
			return err
		}
		newPassword, err := readPassphraseConfirmed("New passphrase: ")
		if err != nil {
			return err
		}

		rotated, err := manager.RotateUserKeys(oldPassword, newPassword, bundle)
		if err != nil {
			return err
		}
		if err = saveBundle(rotated); err != nil {
			return err
		}

		fmt.Printf("Rotated key bundle for %s (version %d)\n", rotated.UserID, rotated.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(rotateCmd)
}
