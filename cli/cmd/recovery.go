package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Manage the account recovery key",
}

var recoveryGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a recovery key for the current bundle",
	Long: `Generates a high-entropy recovery key and wraps your data key under
it. The key is printed once and never stored; write it down and keep it
somewhere safe. Generating a new recovery key invalidates the previous one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := loadBundle()
		if err != nil {
			return err
		}

		password, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		secret, err := manager.GenerateRecoveryKey(bundle, password)
		if err != nil {
			return err
		}
		if err = saveBundle(bundle); err != nil {
			return err
		}

		fmt.Println("Recovery key (shown once, never stored):")
		fmt.Printf("\n    %s\n\n", secret)
		fmt.Println("Anyone holding this key can recover your data. Store it offline.")
		return nil
	},
}

var recoveryRestoreCmd = &cobra.Command{
	Use:   "restore <recovery-key>",
	Short: "Recover access with a recovery key and set a new passphrase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := loadBundle()
		if err != nil {
			return err
		}

		newPassword, err := readPassphraseConfirmed("New passphrase: ")
		if err != nil {
			return err
		}

		recovered, err := manager.RecoverWithRecoveryKey(bundle, args[0], newPassword)
		if err != nil {
			return err
		}
		if err = saveBundle(recovered); err != nil {
			return err
		}

		fmt.Printf("Recovered key bundle for %s (version %d)\n", recovered.UserID, recovered.Version)
		return nil
	},
}

func init() {
	recoveryCmd.AddCommand(recoveryGenerateCmd)
	recoveryCmd.AddCommand(recoveryRestoreCmd)
	rootCmd.AddCommand(recoveryCmd)
}
