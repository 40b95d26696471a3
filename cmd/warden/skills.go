package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/skill"
	"github.com/harunnryd/warden/internal/skill/formatter"

	"github.com/spf13/cobra"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect skills",
	Long:  `List, match and validate skill definitions without starting the router.`,
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bundled and generated skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadSkillsReadOnly(cfg)
		if err != nil {
			return err
		}
		f, err := skillFormatter(cmd)
		if err != nil {
			return err
		}
		out, err := f.FormatSkills(registry.List())
		if err != nil {
			return err
		}
		return writeLine(cmd.OutOrStdout(), out)
	},
}

var skillsMatchCmd = &cobra.Command{
	Use:   "match [query]",
	Short: "Show which skill a query would run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadSkillsReadOnly(cfg)
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		s, ok := registry.Match(query)
		if !ok {
			return fmt.Errorf("no skill matches %q", query)
		}
		f, err := skillFormatter(cmd)
		if err != nil {
			return err
		}
		out, err := f.FormatSkill(s)
		if err != nil {
			return err
		}
		return writeLine(cmd.OutOrStdout(), out)
	},
}

var skillsValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a SKILL.md file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := skill.ParseFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to parse skill file: %w", err)
		}
		if err := skill.Validate(s); err != nil {
			return err
		}
		return writeLine(cmd.OutOrStdout(), fmt.Sprintf("✓ %s is valid (%s)", s.Name, s.Mode))
	},
}

// loadSkillsReadOnly loads the registry without touching the generated
// store beyond reading it.
func loadSkillsReadOnly(c *config.Config) (*skill.Registry, error) {
	if c == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	store, err := skill.NewStore(c.Skills.GeneratedDir)
	if err != nil {
		return nil, err
	}
	registry, err := skill.LoadDir(skill.Options{
		BundledDir: c.Skills.BundledDir,
		Store:      store,
		Disabled:   c.Skills.Disabled,
		ReadOnly:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	return registry, nil
}

func outputFormat(cmd *cobra.Command) (formatter.OutputFormat, error) {
	value := "table"
	if flag := cmd.Flags().Lookup("output"); flag != nil {
		value = flag.Value.String()
	}
	return formatter.ParseOutputFormat(value)
}

func skillFormatter(cmd *cobra.Command) (formatter.SkillFormatter, error) {
	format, err := outputFormat(cmd)
	if err != nil {
		return nil, err
	}
	return formatter.New(format)
}

func writeLine(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}

func init() {
	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsMatchCmd)
	skillsCmd.AddCommand(skillsValidateCmd)
	rootCmd.AddCommand(skillsCmd)
}
