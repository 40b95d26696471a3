package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/warden/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed templates/config.yaml
var embeddedDefaultConfig []byte

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage Warden configuration file and secrets.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Dump fully resolved configuration",
	Long:  `Display current configuration with all defaults applied and environment variables resolved. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if loadedCfg == nil {
			return fmt.Errorf("config is not initialized; run 'warden config init' first")
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(redactConfigSecrets(loadedCfg)); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration",
	Long:  `Create a default configuration file at $HOME/.warden/config.yaml if it doesn't exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		configDir := filepath.Join(home, ".warden")
		if err := os.MkdirAll(configDir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
		}

		out := cmd.OutOrStdout()
		configPath := filepath.Join(configDir, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Config already exists at %s\n", configPath)
			fmt.Fprintln(out, "Use 'warden config view' to see current configuration.")
			return nil
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to check config file: %w", err)
		}

		defaultConfig := strings.TrimSpace(string(embeddedDefaultConfig)) + "\n"
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0600); err != nil {
			return fmt.Errorf("failed to write config to %s: %w", configPath, err)
		}

		fmt.Fprintf(out, "✓ Initialized config at %s\n", configPath)
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "1. Export SERVICE_SECRET, or run 'warden config set-secret' and set auth.secret_source: keyring")
		fmt.Fprintln(out, "2. Set auth.operator_api_key")
		fmt.Fprintln(out, "3. Run 'warden config view' to verify your configuration")
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret",
	Short: "Store the shared secret in the OS keyring",
	Long:  `Reads the shared secret from stdin and stores it in the OS keyring under the configured service id.`,
	// Loading the config would read the keyring entry this command creates.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceID, _ := cmd.Flags().GetString("service-id")
		if serviceID == "" {
			loadedCfg, err := loadConfigForCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config, pass --service-id: %w", err)
			}
			serviceID = loadedCfg.Auth.ServiceID
		}

		raw, err := readBody("-", cmd.InOrStdin())
		if err != nil {
			return err
		}
		secret := strings.TrimSpace(string(raw))
		if err := config.StoreSecret(serviceID, secret); err != nil {
			return fmt.Errorf("failed to store secret: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored secret for %s in the keyring\n", serviceID)
		return nil
	},
}

func loadConfigForCommand(cmd *cobra.Command) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	loadedCfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}

	return loadedCfg, nil
}

func redactConfigSecrets(in *config.Config) *config.Config {
	if in == nil {
		return nil
	}

	out := *in

	if len(in.Models.Registry) > 0 {
		out.Models.Registry = make([]config.ModelRegistry, len(in.Models.Registry))
		copy(out.Models.Registry, in.Models.Registry)
		for i := range out.Models.Registry {
			out.Models.Registry[i].APIKey = maskSecret(out.Models.Registry[i].APIKey)
		}
	}

	out.Auth.Secret = maskSecret(out.Auth.Secret)
	out.Auth.OperatorAPIKey = maskSecret(out.Auth.OperatorAPIKey)
	out.Redis.Password = maskSecret(out.Redis.Password)
	out.Notify.Slack.BotToken = maskSecret(out.Notify.Slack.BotToken)
	out.Notify.Telegram.BotToken = maskSecret(out.Notify.Telegram.BotToken)

	return &out
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

func init() {
	configSetSecretCmd.Flags().String("service-id", "", "service id to store the secret under (default auth.service_id)")
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetSecretCmd)
	rootCmd.AddCommand(configCmd)
}
