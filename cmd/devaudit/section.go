package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/devaudit/internal/http"
	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/fyrsmithlabs/devaudit/internal/variants"
)

func init() {
	rootCmd.AddCommand(sectionsCmd)
	sectionsCmd.AddCommand(sectionShowCmd, sectionChooseCmd, sectionToggleCmd, sectionCustomCmd, sectionRegenerateCmd)
}

var sectionsCmd = &cobra.Command{
	Use:   "sections <id>",
	Short: "List and edit report sections",
	Long: `List the sections of a report, or view and edit one of them.

Examples:
  # List the sections of deviation 12
  devaudit sections 12

  # Show the chosen variant of a section
  devaudit sections show 12 essence

  # Choose the second variant and switch to the full text
  devaudit sections choose 12 essence 1
  devaudit sections toggle 12 essence

  # Store your own wording and choose it
  devaudit sections custom 12 measures "Вернуть переплату до 30.04"

  # Ask the generator for fresh variants
  devaudit sections regenerate 12 root_causes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := recordPath(args[0], "/sections")
		if err != nil {
			return err
		}
		var listing variants.Listing
		if err := newClient().do(cmd.Context(), http.MethodGet, path, nil, &listing); err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVARIANTS\tTITLE")
		for _, s := range listing.Sections {
			n := "-"
			if s.Populated {
				n = strconv.Itoa(s.Variants)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, n, s.Title)
		}
		return w.Flush()
	},
}

// sectionPath validates the id and key arguments.
func sectionPath(id, key, suffix string) (string, error) {
	k, err := report.ParseSectionKey(key)
	if err != nil {
		return "", err
	}
	return recordPath(id, "/sections/"+string(k)+suffix)
}

func printView(cmd *cobra.Command, v variants.View) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", v.Title, v.Key)
	if v.Variants > 0 {
		fmt.Fprintf(out, "variant %d of %d, %s\n", v.Chosen+1, v.Variants, v.Mode)
	}
	fmt.Fprintf(out, "\n%s\n", v.Text)
}

func viewCommand(use, short string, args cobra.PositionalArgs, method, suffix string, body func([]string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sectionPath(args[0], args[1], suffix)
			if err != nil {
				return err
			}
			var in any
			if body != nil {
				if in, err = body(args[2:]); err != nil {
					return err
				}
			}
			var view variants.View
			if err := newClient().do(cmd.Context(), method, path, in, &view); err != nil {
				return err
			}
			printView(cmd, view)
			return nil
		},
	}
}

var sectionShowCmd = viewCommand("show <id> <section>", "Show one section",
	cobra.ExactArgs(2), http.MethodGet, "", nil)

var sectionChooseCmd = viewCommand("choose <id> <section> <index>", "Choose a variant by zero-based index",
	cobra.ExactArgs(3), http.MethodPut, "/chosen", func(rest []string) (any, error) {
		idx, err := strconv.Atoi(rest[0])
		if err != nil {
			return nil, fmt.Errorf("invalid variant index %q", rest[0])
		}
		return httpapi.ChooseRequest{Index: &idx}, nil
	})

var sectionToggleCmd = viewCommand("toggle <id> <section>", "Switch between short and full text",
	cobra.ExactArgs(2), http.MethodPost, "/mode/toggle", nil)

var sectionCustomCmd = viewCommand("custom <id> <section> <text...>", "Store your own variant and choose it",
	cobra.MinimumNArgs(3), http.MethodPost, "/custom", func(rest []string) (any, error) {
		return httpapi.CustomRequest{Text: strings.Join(rest, " ")}, nil
	})

var sectionRegenerateCmd = viewCommand("regenerate <id> <section>", "Ask the generator for fresh variants",
	cobra.ExactArgs(2), http.MethodPost, "/regenerate", nil)
