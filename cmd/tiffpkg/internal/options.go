package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/goplus/tiffpkg/recipe"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List the build options and their defaults",
	Args:  cobra.NoArgs,
	RunE:  runOptions,
}

func init() {
	rootCmd.AddCommand(optionsCmd)
}

var headerStyle = lipgloss.NewStyle().Bold(true)

func runOptions(cmd *cobra.Command, args []string) error {
	r := recipe.TinyTIFF()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s %s options", r.Name, r.Version)))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "DEFAULT", "FLAG", "COMPONENT", "DESCRIPTION")
	for _, o := range r.Schema.Options() {
		t.Row(o.Name, boolLiteral(o.Default), o.Flag, governed(r, o.Name), o.Help)
	}
	_, err := fmt.Fprintln(out, t.Render())
	return err
}

// governed lists the components an option switches on.
func governed(r *recipe.Recipe, name string) string {
	var ids []string
	for _, rule := range r.Components {
		for _, req := range rule.Requires {
			if req == name {
				ids = append(ids, rule.ID)
			}
		}
	}
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}

func boolLiteral(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
