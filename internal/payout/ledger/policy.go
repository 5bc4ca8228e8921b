package ledger

import (
	"strings"

	"marquee/internal/payout/models"
)

// MatchPolicy decides whether a ledger record's memo counts toward a payout.
// Classification is a business rule encoded in free-text matching, so it is
// injectable and tested in isolation rather than inlined in the aggregation
// loop.
type MatchPolicy interface {
	Matches(memo string, partnerName string, kind models.PayoutKind) bool
}

// institutionalKeywords mark shared-revenue transactions: festival passes,
// ticket blocks, event access. Matching is case-insensitive substring.
var institutionalKeywords = []string{
	"festival pass",
	"all-access",
	"ticket block",
	"event access",
	"screening block",
}

// MemoPolicy is the default policy. INSTITUTIONAL matches the keyword set;
// INDIVIDUAL requires the memo to contain the partner's name.
//
// Known limitation: substring matching over-counts when one partner's name is
// contained in another's ("Ann" matches "Anna"), and a memo naming two
// partners counts toward both. Both behaviors are accepted rather than
// special-cased; fixing them needs structured memos from the processor.
type MemoPolicy struct {
	keywords []string
}

func NewMemoPolicy() *MemoPolicy {
	return &MemoPolicy{keywords: institutionalKeywords}
}

func (p *MemoPolicy) Matches(memo string, partnerName string, kind models.PayoutKind) bool {
	memo = strings.ToLower(strings.TrimSpace(memo))
	if memo == "" {
		return false
	}

	switch kind {
	case models.KindInstitutional:
		for _, kw := range p.keywords {
			if strings.Contains(memo, kw) {
				return true
			}
		}
		return false
	case models.KindIndividual:
		name := strings.ToLower(strings.TrimSpace(partnerName))
		if name == "" {
			return false
		}
		return strings.Contains(memo, name)
	default:
		return false
	}
}
