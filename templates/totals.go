package templates

import (
	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/field"
)

// Aggregate computes the totals of t over entries. Numeric fields are
// summed, boolean fields count their true values; other fields are ignored.
// Values that do not match their field type are skipped.
func Aggregate(t contaconmigo.Template, entries []contaconmigo.Entry) contaconmigo.Totals {
	totals := contaconmigo.Totals{
		TemplateID:   t.ID,
		TemplateName: t.Name,
		Count:        len(entries),
		Sums:         make(map[string]float64),
		TrueCounts:   make(map[string]int),
	}

	for _, f := range t.Fields {
		switch f.Type {
		case contaconmigo.FieldInt, contaconmigo.FieldFloat:
			totals.Sums[f.Name] = 0
		case contaconmigo.FieldBoolean:
			totals.TrueCounts[f.Name] = 0
		}
	}

	for _, e := range entries {
		if e.CreatedAt.After(totals.LastEntryAt) {
			totals.LastEntryAt = e.CreatedAt
		}
		for _, f := range t.Fields {
			v, ok := e.Values[f.Name]
			if !ok {
				continue
			}
			switch f.Type {
			case contaconmigo.FieldInt, contaconmigo.FieldFloat:
				if n, ok := field.Number(v); ok {
					totals.Sums[f.Name] += n
				}
			case contaconmigo.FieldBoolean:
				if b, ok := field.Bool(v); ok && b {
					totals.TrueCounts[f.Name]++
				}
			}
		}
	}
	return totals
}
