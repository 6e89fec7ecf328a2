package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/eachlabs/chorus/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage chorus configuration.

Subcommands:
  show                   Show the whole configuration
  get <key>              Show one value
  set <key> <value>      Set a value
  edit                   Open config in $EDITOR
  path                   Show config file path`,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		shown := *cfg
		shown.Provider = make(map[string]config.ProviderConfig, len(cfg.Provider))
		for name, p := range cfg.Provider {
			p.APIKey = config.MaskToken(p.APIKey)
			shown.Provider[name] = p
		}
		if len(shown.Backends) == 0 {
			shown.Backends = cfg.Catalog()
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(shown)
		}
		return toml.NewEncoder(out).Encode(shown)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a configuration value",
	Long: `Show one configuration value. API keys are masked.

Examples:
  chorus config get relay.timeout
  chorus config get provider.openrouter.api_key
  chorus config get defaults.models`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		value, ok := cfg.Get(args[0])
		if !ok {
			return fmt.Errorf("key not found: %s", args[0])
		}

		if jsonOut {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(value)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Examples:
  chorus config set defaults.models openai/gpt-4o-mini,anthropic/claude-3.5-haiku
  chorus config set provider.openrouter.api_key sk-or-...
  chorus config set relay.port 9000`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.SaveFile(path); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config in editor",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		path := configPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if err := cfg.SaveFile(path); err != nil {
				return err
			}
		}

		c := exec.Command(editor, path)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), configPath())
	},
}
