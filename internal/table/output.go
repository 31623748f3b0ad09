package table

import (
	"strings"

	"github.com/sells-group/phone-enrich/internal/model"
)

// PhoneSeparator joins multiple phones in one cell.
const PhoneSeparator = ";"

// OutputColumns returns the enrichment columns written for channel c.
func OutputColumns(c model.Channel) []string {
	cols := []string{
		c.Prefix() + "Scrape_Status",
		c.Prefix() + "Scrape_Error",
		c.PhoneColumn(),
	}
	if c == model.ChannelWebsite {
		cols = append(cols, c.Prefix()+"Contact_Page", c.Prefix()+"Page_Type")
	}
	return cols
}

// Header returns base followed by the enrichment columns of each channel that
// base does not already contain.
func Header(base []string, channels ...model.Channel) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]bool, len(base))
	for _, h := range base {
		seen[h] = true
	}
	for _, c := range channels {
		for _, col := range OutputColumns(c) {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// Rows renders leads under header. Enrichment columns of an attempted channel
// take the enrichment's values; every other cell keeps the input value.
func Rows(header []string, leads []model.EnrichedLead) [][]string {
	rows := make([][]string, len(leads))
	for i, l := range leads {
		values := enrichmentValues(l)
		row := make([]string, len(header))
		for j, h := range header {
			if v, ok := values[h]; ok {
				row[j] = v
			} else {
				row[j] = l.Columns[h]
			}
		}
		rows[i] = row
	}
	return rows
}

func enrichmentValues(l model.EnrichedLead) map[string]string {
	out := make(map[string]string)
	for _, c := range []model.Channel{model.ChannelFacebook, model.ChannelWebsite} {
		en := l.Enrichment(c)
		if !en.Attempted() {
			continue
		}
		cols := OutputColumns(c)
		out[cols[0]] = string(en.Status)
		out[cols[1]] = en.Error
		out[cols[2]] = strings.Join(en.Phones, PhoneSeparator)
		if len(cols) > 3 {
			out[cols[3]] = en.ContactPageURL
			out[cols[4]] = string(en.PageType)
		}
	}
	return out
}
