package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Encrypt and store a value",
	Long: `Encrypts the value with your unlocked data key and writes it to the
backing store. The value is parsed as JSON when possible and stored as a
plain string otherwise.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		store, err := openStore(password)
		if err != nil {
			return err
		}

		// Store structured values as structures, everything else verbatim.
		var value interface{}
		if err = json.Unmarshal([]byte(args[1]), &value); err != nil {
			value = args[1]
		}

		if err = store.SetItem(args[0], value); err != nil {
			return err
		}
		fmt.Printf("Stored %q\n", args[0])
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read and decrypt a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		store, err := openStore(password)
		if err != nil {
			return err
		}

		var value interface{}
		found, err := store.GetItem(args[0], &value)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no value for %q", args[0])
		}

		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Delete a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Removal needs no unlock; existence and deletion never touch
		// the data key.
		if args[0] == bundleKey {
			return fmt.Errorf("refusing to remove the key bundle")
		}
		if err := backend.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %q\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := backend.List()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if key == bundleKey {
				continue
			}
			fmt.Println(key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
}
