package cli

import (
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

func cmdTotals(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "totals [TEMPLATE_ID]",
		Short: "Show aggregated totals for one template or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var totals []contaconmigo.Totals
			if len(args) == 1 {
				t, err := a.client.Templates().Totals(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				totals = []contaconmigo.Totals{*t}
			} else {
				all, err := a.client.Templates().AllTotals(cmd.Context())
				if err != nil {
					return err
				}
				totals = all
			}

			return a.print(cmd, totals, func(w io.Writer) {
				row(w, "TEMPLATE", "ENTRIES", "FIELD", "TOTAL", "LAST ENTRY")
				for _, t := range totals {
					last := "-"
					if !t.LastEntryAt.IsZero() {
						last = t.LastEntryAt.Local().Format(time.DateTime)
					}
					row(w, t.TemplateName, t.Count, "", "", last)
					for _, name := range sortedKeys(t.Sums) {
						row(w, "", "", name, strconv.FormatFloat(t.Sums[name], 'f', -1, 64), "")
					}
					for _, name := range sortedKeys(t.TrueCounts) {
						row(w, "", "", name, strconv.Itoa(t.TrueCounts[name])+" yes", "")
					}
				}
			})
		},
	}
}
