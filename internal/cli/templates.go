package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

func cmdTemplates(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"tpl"},
		Short:   "Manage templates",
	}
	c.AddCommand(
		cmdTemplatesList(a),
		cmdTemplatesGet(a),
		cmdTemplatesCreate(a),
		cmdTemplatesUpdate(a),
		cmdTemplatesDelete(a),
	)
	return c
}

// parseFields reads --field values of the form name:type[:unit].
func parseFields(specs []string) ([]contaconmigo.Field, error) {
	fields := make([]contaconmigo.Field, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("field %q: expected name:type[:unit]", s)
		}
		f := contaconmigo.Field{
			Name: strings.TrimSpace(parts[0]),
			Type: contaconmigo.FieldType(strings.TrimSpace(parts[1])),
		}
		if len(parts) == 3 {
			f.DisplayUnit = strings.TrimSpace(parts[2])
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func cmdTemplatesList(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client.Templates().List(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, list, func(w io.Writer) {
				row(w, "ID", "NAME", "FIELDS")
				for _, t := range list {
					row(w, t.ID, t.Name, len(t.Fields))
				}
			})
		},
	}
}

func cmdTemplatesGet(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get TEMPLATE_ID",
		Short: "Show a template and its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.client.Templates().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(cmd, t, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", t.Name, t.ID)
				row(w, "FIELD", "TYPE", "UNIT")
				for _, f := range t.Fields {
					row(w, f.Name, f.Type, f.DisplayUnit)
				}
			})
		},
	}
}

func cmdTemplatesCreate(a *app) *cobra.Command {
	var (
		name   string
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a template",
		Example: `  contaconmigo templates create --name Sales \
    --field boxes:int --field client:string --field weight:float:kg --field paid:boolean`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseFields(fields)
			if err != nil {
				return err
			}
			id, err := a.client.Templates().Create(cmd.Context(), contaconmigo.TemplateInput{Name: name, Fields: parsed})
			if err != nil {
				return err
			}
			return a.print(cmd, map[string]string{"template_id": id}, func(w io.Writer) {
				fmt.Fprintf(w, "Created template %s\n", id)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "template name")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "field as name:type[:unit], repeatable; the first must be an int or float")
	return cmd
}

func cmdTemplatesUpdate(a *app) *cobra.Command {
	var (
		name   string
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "update TEMPLATE_ID",
		Short: "Replace a template's name and fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in := contaconmigo.TemplateInput{Name: name}
			if len(fields) > 0 {
				parsed, err := parseFields(fields)
				if err != nil {
					return err
				}
				in.Fields = parsed
			}
			if in.Name == "" || in.Fields == nil {
				cur, err := a.client.Templates().Get(ctx, args[0])
				if err != nil {
					return err
				}
				if in.Name == "" {
					in.Name = cur.Name
				}
				if in.Fields == nil {
					in.Fields = cur.Fields
				}
			}
			if err := a.client.Templates().Update(ctx, args[0], in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated template %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name (kept when empty)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "field as name:type[:unit], repeatable (kept when omitted)")
	return cmd
}

func cmdTemplatesDelete(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete TEMPLATE_ID",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Templates().Delete(cmd.Context(), args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "also delete the template's entries")
	return cmd
}
