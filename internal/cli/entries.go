package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/field"
)

func cmdEntries(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "entries",
		Short: "Submit and review template entries",
	}
	c.AddCommand(
		cmdEntriesAdd(a),
		cmdEntriesList(a),
		cmdEntriesGet(a),
		cmdEntriesUpdate(a),
		cmdEntriesDelete(a),
	)
	return c
}

func cmdEntriesAdd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "add TEMPLATE_ID name=value...",
		Short:   "Submit an entry",
		Example: `  contaconmigo entries add 3f2a... client=Ana boxes=3 weight=1,5 paid=yes`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			if err := a.client.Templates().SubmitEntry(cmd.Context(), args[0], raw); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Entry submitted")
			return nil
		},
	}
}

// formatValue renders v the way the template field declares it.
func formatValue(t *contaconmigo.Template, name string, v any) string {
	for _, f := range t.Fields {
		if f.Name != name {
			continue
		}
		s := field.Format(f.Type, v)
		if f.DisplayUnit != "" && s != "" {
			s += " " + f.DisplayUnit
		}
		return s
	}
	return fmt.Sprint(v)
}

func cmdEntriesList(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list TEMPLATE_ID",
		Short: "List a template's entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.client.Templates().Get(ctx, args[0])
			if err != nil {
				return err
			}
			entries, err := a.client.Templates().Entries(ctx, args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, entries, func(w io.Writer) {
				header := []any{"ID", "CREATED"}
				for _, f := range t.Fields {
					header = append(header, f.Name)
				}
				row(w, header...)
				for _, e := range entries {
					cols := []any{e.ID, e.CreatedAt.Local().Format(time.DateTime)}
					for _, f := range t.Fields {
						cols = append(cols, formatValue(t, f.Name, e.Values[f.Name]))
					}
					row(w, cols...)
				}
			})
		},
	}
}

func cmdEntriesGet(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get TEMPLATE_ID ENTRY_ID",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.client.Templates().Get(ctx, args[0])
			if err != nil {
				return err
			}
			e, err := a.client.Templates().Entry(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return a.print(cmd, e, func(w io.Writer) {
				row(w, "id", e.ID)
				row(w, "created", e.CreatedAt.Local().Format(time.DateTime))
				for _, name := range sortedKeys(e.Values) {
					row(w, name, formatValue(t, name, e.Values[name]))
				}
			})
		},
	}
}

func cmdEntriesUpdate(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update TEMPLATE_ID ENTRY_ID name=value...",
		Short: "Replace an entry's values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			if err := a.client.Templates().UpdateEntry(cmd.Context(), args[0], args[1], raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated entry %s\n", args[1])
			return nil
		},
	}
}

func cmdEntriesDelete(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TEMPLATE_ID ENTRY_ID",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Templates().DeleteEntry(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %s\n", args[1])
			return nil
		},
	}
}
