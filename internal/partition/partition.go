// Package partition splits enriched leads into rows with a trustworthy phone
// and rows that need follow-up.
package partition

import (
	"go.uber.org/zap"

	"github.com/sells-group/phone-enrich/internal/model"
)

// Policy controls which phones are considered and how duplicates are scoped.
type Policy struct {
	// Channels whose primary phone counts. Empty means both channels.
	Channels []model.Channel
	// CrossChannel scopes duplicate detection across channels: the same
	// number resolved for different rows via Facebook and via Website
	// disqualifies both rows.
	CrossChannel bool
}

// Result holds the two disjoint output sets, each in input order.
type Result struct {
	Resolved []model.EnrichedLead
	FollowUp []model.EnrichedLead
}

func (p Policy) channels() []model.Channel {
	if len(p.Channels) == 0 {
		return []model.Channel{model.ChannelFacebook, model.ChannelWebsite}
	}
	return p.Channels
}

func (p Policy) claimKey(c model.Channel, phone string) string {
	if p.CrossChannel {
		return phone
	}
	return string(c) + ":" + phone
}

// Partition puts a row in Resolved when it has at least one primary phone on
// the policy's channels and no other row claims any of its phones. Every other
// row, including rows never attempted or excluded upstream, goes to FollowUp.
// A phone claimed by more than one row is removed from each of them.
func Partition(records []model.EnrichedLead, p Policy) Result {
	claims := make([][]string, len(records))
	owners := make(map[string]int)
	for i, r := range records {
		seen := make(map[string]struct{})
		for _, c := range p.channels() {
			ph := r.Enrichment(c).PrimaryPhone()
			if ph == "" {
				continue
			}
			k := p.claimKey(c, ph)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			claims[i] = append(claims[i], k)
			owners[k]++
		}
	}

	var res Result
	var duplicates int
	for i, r := range records {
		if len(claims[i]) == 0 {
			res.FollowUp = append(res.FollowUp, r)
			continue
		}
		unique := true
		for _, k := range claims[i] {
			if owners[k] > 1 {
				unique = false
				break
			}
		}
		if !unique {
			duplicates++
			res.FollowUp = append(res.FollowUp, p.retract(r, owners))
			continue
		}
		res.Resolved = append(res.Resolved, r)
	}

	zap.L().Info("partitioned leads",
		zap.Int("resolved", len(res.Resolved)),
		zap.Int("follow_up", len(res.FollowUp)),
		zap.Int("duplicate_phone_rows", duplicates),
		zap.Bool("cross_channel", p.CrossChannel),
	)
	return res
}

// retract returns a copy of r without the primary phones that other rows also
// claim.
func (p Policy) retract(r model.EnrichedLead, owners map[string]int) model.EnrichedLead {
	for _, c := range p.channels() {
		en := r.Enrichment(c)
		ph := en.PrimaryPhone()
		if ph == "" || owners[p.claimKey(c, ph)] < 2 {
			continue
		}
		kept := make([]string, 0, len(en.Phones))
		for _, other := range en.Phones {
			if other != ph {
				kept = append(kept, other)
			}
		}
		en.Phones = kept
		r = r.With(en)
	}
	return r
}
