package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"brightboard.dev/keyvault"
	"brightboard.dev/keyvault/audit"
	"brightboard.dev/keyvault/persist"
)

// bundleKey is the reserved store key the CLI keeps the user's key bundle
// under. The bundle is safe to persist in plaintext JSON; it contains no
// recoverable secret.
const bundleKey = ".keybundle"

var (
	cfgFile string
	userID  string

	manager *keyvault.Manager
	backend persist.Store
)

// CLIConfig is the on-disk configuration for the keyvault CLI.
type CLIConfig struct {
	UserID         string              `mapstructure:"user_id" yaml:"user_id"`
	SessionTimeout time.Duration       `mapstructure:"session_timeout" yaml:"session_timeout"`
	Store          persist.StoreConfig `mapstructure:"store" yaml:"store"`
	Audit          *audit.Config       `mapstructure:"audit" yaml:"audit,omitempty"`
	MemoryLock     bool                `mapstructure:"memory_lock" yaml:"memory_lock"`
}

var config CLIConfig

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "keyvault",
	Short: "Client-side key management and encrypted storage",
	Long: `keyvault manages password-derived key bundles and an encrypted
key-value store. Data encryption keys are wrapped under a master key
derived from your password; values are encrypted with AES-256-GCM before
they ever reach the backing store.`,
	PersistentPreRunE: initializeManager,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if backend != nil {
			backend.Close()
		}
		if manager != nil {
			return manager.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.keyvault/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (overrides config)")
	rootCmd.PersistentFlags().SetNormalizeFunc(normalizeFlags)
}

// normalizeFlags maps underscore-separated flags onto their dashed form.
func normalizeFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initializeManager loads configuration and builds the manager and the
// backing store every command works against.
func initializeManager(cmd *cobra.Command, args []string) error {
	// Config commands manage the config file itself and must work
	// without one.
	if cmd.Name() == "config" || cmd.Parent() != nil && cmd.Parent().Name() == "config" {
		return nil
	}

	if err := loadConfig(); err != nil {
		return err
	}

	if userID != "" {
		config.UserID = userID
	}
	if config.UserID == "" {
		return fmt.Errorf("no user id: set user_id in the config file or pass --user")
	}

	var err error
	manager, err = keyvault.NewManager(keyvault.Options{
		SessionTimeout:   config.SessionTimeout,
		EnableMemoryLock: config.MemoryLock,
		Audit:            config.Audit,
	})
	if err != nil {
		return err
	}

	backend, err = persist.NewStore(config.Store, config.UserID)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	return nil
}

func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(filepath.Join(home, ".keyvault"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("KEYVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// No config file: fall back to defaults.
		config = defaultConfig()
		return nil
	}

	if err := viper.Unmarshal(&config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if config.Store.Type == "" {
		config.Store = defaultConfig().Store
	}
	return nil
}

func defaultConfig() CLIConfig {
	home, _ := os.UserHomeDir()
	return CLIConfig{
		SessionTimeout: keyvault.DefaultSessionTimeout,
		Store: persist.StoreConfig{
			Type: persist.StoreTypeFileSystem,
			Config: map[string]interface{}{
				"base_path": filepath.Join(home, ".keyvault", "data"),
			},
		},
	}
}

// loadBundle reads the user's key bundle from the backing store.
func loadBundle() (*keyvault.KeyBundle, error) {
	data, found, err := backend.Get(bundleKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read key bundle: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no key bundle for user %q: run 'keyvault init' first", config.UserID)
	}
	return keyvault.ParseKeyBundle(data)
}

// saveBundle writes the user's key bundle to the backing store.
func saveBundle(bundle *keyvault.KeyBundle) error {
	data, err := bundle.Serialize()
	if err != nil {
		return err
	}
	if err = backend.Put(bundleKey, data); err != nil {
		return fmt.Errorf("failed to save key bundle: %w", err)
	}
	return nil
}

// openStore unlocks the bundle with the passphrase and returns an
// encrypted store bound to the fresh session.
func openStore(password string) (*keyvault.EncryptedStore, error) {
	bundle, err := loadBundle()
	if err != nil {
		return nil, err
	}

	sessionID, err := manager.UnlockUserKeys(bundle, password)
	if err != nil {
		return nil, err
	}

	store := keyvault.NewEncryptedStore(backend, manager.Sessions(), nil)
	store.Bind(sessionID)
	return store, nil
}
