// cmd/tools/template-registry/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"finlit-workers/pkg/registry"

	"github.com/spf13/cobra"
)

const defaultPath = "configs/templates.yaml"

func newRootCmd() *cobra.Command {
	var path string

	root := &cobra.Command{
		Use:           "template-registry",
		Short:         "Inspect and check the prompt template catalogue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&path, "path", defaultPath, "Path to the template catalogue")

	root.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List templates with their version and slots",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				reg, err := registry.Load(path)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "catalogue %s\n", reg.Version())
				for _, name := range reg.Names() {
					tpl, _ := reg.Get(name)
					fmt.Fprintf(out, "%-24s %-8s %s\n", tpl.Name(), tpl.Version(), strings.Join(tpl.Slots(), ","))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check every template declares exactly the slots its body uses",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				reg, err := registry.Load(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d templates ok\n", path, len(reg.Names()))
				return nil
			},
		},
		newRenderCmd(&path),
	)
	return root
}

func newRenderCmd(path *string) *cobra.Command {
	var values map[string]string

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template with slot values given as --set slot=value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(*path)
			if err != nil {
				return err
			}
			text, err := reg.Render(args[0], values)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&values, "set", nil, "Slot value, repeatable (slot=value)")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
