package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"brightboard.dev/keyvault"
)

var (
	exportOutput string
	importInput  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the key bundle as a passphrase-protected file",
	Long: `Seals the key bundle under an export passphrase for transfer to
another device. The export passphrase is independent of your unlock
passphrase; the sealed file is useless without it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := loadBundle()
		if err != nil {
			return err
		}

		passphrase, err := readPassphraseConfirmed("Export passphrase: ")
		if err != nil {
			return err
		}

		data, err := keyvault.ExportBundle(bundle, passphrase)
		if err != nil {
			return err
		}

		if err = os.WriteFile(exportOutput, data, 0600); err != nil {
			return fmt.Errorf("failed to write export file: %w", err)
		}
		fmt.Printf("Exported key bundle to %s\n", exportOutput)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a previously exported key bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadBundle(); err == nil {
			if !confirm("A key bundle already exists for this user. Overwrite it?") {
				return fmt.Errorf("import cancelled")
			}
		}

		data, err := os.ReadFile(importInput)
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		passphrase, err := readPassphrase("Export passphrase: ")
		if err != nil {
			return err
		}

		bundle, err := keyvault.ImportBundle(data, passphrase)
		if err != nil {
			return err
		}
		if err = saveBundle(bundle); err != nil {
			return err
		}

		fmt.Printf("Imported key bundle for %s (version %d)\n", bundle.UserID, bundle.Version)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "keyvault-export.json", "output file")
	importCmd.Flags().StringVarP(&importInput, "input", "i", "", "input file (required)")
	importCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
