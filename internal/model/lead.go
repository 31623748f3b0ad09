package model

// Channel identifies where an enrichment came from.
type Channel string

const (
	ChannelFacebook Channel = "facebook"
	ChannelWebsite  Channel = "website"
)

// Prefix returns the output column prefix for the channel.
func (c Channel) Prefix() string {
	switch c {
	case ChannelFacebook:
		return "Facebook_"
	case ChannelWebsite:
		return "Website_"
	}
	return string(c) + "_"
}

// PhoneColumn returns the name of the phone output column for the channel.
func (c Channel) PhoneColumn() string {
	if c == ChannelFacebook {
		return "Phones"
	}
	return c.Prefix() + "Phones"
}

// Status is the definitive outcome recorded on a row for one channel.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusMissing Status = "missing"
	StatusSkipped Status = "skipped"
)

// PageType tells which page of a website produced the phones.
type PageType string

const (
	PageHomepage PageType = "homepage"
	PageContact  PageType = "contact page"
	PageUnknown  PageType = "unknown"
)

// Lead is one row of the input table. Row is its position and identity.
type Lead struct {
	Row      int               `json:"row"`
	Facebook string            `json:"facebook,omitempty"`
	Website  string            `json:"website,omitempty"`
	Columns  map[string]string `json:"columns,omitempty"`
}

// Enrichment is the result of one channel for one lead. A zero Enrichment
// means the row was never attempted on that channel.
type Enrichment struct {
	Channel        Channel  `json:"channel"`
	Status         Status   `json:"status,omitempty"`
	Error          string   `json:"error,omitempty"`
	Phones         []string `json:"phones,omitempty"`
	ContactPageURL string   `json:"contact_page_url,omitempty"`
	PageType       PageType `json:"page_type,omitempty"`
}

// Attempted reports whether the channel recorded any outcome.
func (e Enrichment) Attempted() bool {
	return e.Status != ""
}

// PrimaryPhone returns the first validated phone, or "".
func (e Enrichment) PrimaryPhone() string {
	if len(e.Phones) == 0 {
		return ""
	}
	return e.Phones[0]
}

// EnrichedLead is a lead plus the enrichment of each channel.
type EnrichedLead struct {
	Lead
	FacebookResult Enrichment `json:"facebook_enrichment"`
	WebsiteResult  Enrichment `json:"website_enrichment"`
}

// Enrichment returns the enrichment for channel c.
func (e EnrichedLead) Enrichment(c Channel) Enrichment {
	if c == ChannelFacebook {
		return e.FacebookResult
	}
	return e.WebsiteResult
}

// With returns a copy of e carrying en on its channel.
func (e EnrichedLead) With(en Enrichment) EnrichedLead {
	en.Phones = append([]string(nil), en.Phones...)
	if en.Channel == ChannelFacebook {
		e.FacebookResult = en
	} else {
		e.WebsiteResult = en
	}
	return e
}

// Enrich wraps leads in EnrichedLeads with no enrichment. The input slice and
// its column maps are not shared with the result.
func Enrich(leads []Lead) []EnrichedLead {
	out := make([]EnrichedLead, len(leads))
	for i, l := range leads {
		cols := make(map[string]string, len(l.Columns))
		for k, v := range l.Columns {
			cols[k] = v
		}
		l.Columns = cols
		out[i] = EnrichedLead{
			Lead:           l,
			FacebookResult: Enrichment{Channel: ChannelFacebook},
			WebsiteResult:  Enrichment{Channel: ChannelWebsite},
		}
	}
	return out
}
