package notify

import (
	"fmt"
	"strings"

	"oversight.dev/internal/approval"
	"oversight.dev/internal/ledger"
)

func FlaggedText(e ledger.Entry) string {
	return "⚠️ Flagged action\n\n" + details(e) + "\n\nThe agent was allowed to proceed."
}

func AwaitText(e ledger.Entry) string {
	return "🔐 Approval required\n\n" + details(e) + "\nID: " + e.ID
}

func BlockedText(e ledger.Entry) string {
	return "⛔ Action blocked\n\n" + details(e) + "\n\nThe agent was told not to proceed."
}

// ResolvedText appends the final status to the original await text.
func ResolvedText(original string, rec approval.Record) string {
	var line string
	switch {
	case rec.Actor == approval.ActorExpiry:
		line = "⌛ Denied: approval timed out"
	case rec.Status == approval.StatusApproved:
		line = "✅ Approved"
	default:
		line = "❌ Denied"
	}
	if rec.Actor != "" && rec.Actor != approval.ActorExpiry {
		line += " by " + rec.Actor
	}
	return original + "\n\n" + line
}

func details(e ledger.Entry) string {
	factors := "none"
	if len(e.Factors) > 0 {
		factors = strings.Join(e.Factors, "; ")
	}
	return fmt.Sprintf("%s: %s\nRisk: %d/10 (%s)\nFactors: %s", e.Name, e.Description, e.Score, e.Domain, factors)
}
