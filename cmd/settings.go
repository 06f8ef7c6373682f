package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"go.aimuz.me/comictl/internal/types"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change translation settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settingsStore()
		if err != nil {
			return err
		}
		s, err := store.Load()
		if err != nil {
			return err
		}
		return printSettings(cmd, s)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change one setting by its JSON name",
	Example: `  comictl settings set targetLang CHS
  comictl settings set inpaintingSize 1024
  comictl settings set enableCache false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settingsStore()
		if err != nil {
			return err
		}
		s, err := store.Update(func(s *types.Settings) error {
			return setField(s, args[0], args[1])
		})
		if err != nil {
			return err
		}
		return printSettings(cmd, s)
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settingsStore()
		if err != nil {
			return err
		}
		s, err := store.Reset()
		if err != nil {
			return err
		}
		return printSettings(cmd, s)
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settingsStore()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), store.Path())
		return err
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsResetCmd, settingsPathCmd)
	rootCmd.AddCommand(settingsCmd)
}

func printSettings(cmd *cobra.Command, s types.Settings) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// setField assigns value to the field whose JSON name is key. Values that
// parse as JSON keep their type, anything else is taken as a string.
func setField(s *types.Settings, key, value string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if _, ok := fields[key]; !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	raw := json.RawMessage(value)
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(value)
		raw = quoted
	}
	fields[key] = raw

	data, err = json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
