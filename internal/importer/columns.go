package importer

import (
	"github.com/smallbiznis/creatorpay/pkg/textnorm"
)

// Canonical record fields an extract column can map to.
const (
	ColPeriod       = "period"
	ColCreatorID    = "creator_id"
	ColUsername     = "username"
	ColGroup        = "group"
	ColAgent        = "agent"
	ColRelationDate = "relation_date"
	ColDiamonds     = "diamonds"
	ColLiveHours    = "live_hours"
	ColLiveDays     = "live_days"
	ColStatus       = "status"
)

// aliases lists the header labels seen in agency extracts. Labels are
// compared after textnorm.Fold, so accents and case do not matter.
var aliases = map[string][]string{
	ColPeriod: {
		"period", "période des données", "période", "période données", "période des données (a)",
	},
	ColCreatorID: {
		"creator_id", "creator id", "id créateur", "id du créateur", "id du/de la créateur(trice)",
	},
	ColUsername: {
		"username", "nom d'utilisateur du/de la créateur(trice)", "nom d'utilisateur",
		"créateur", "user",
	},
	ColGroup: {
		"group", "groupe/manager", "groupe", "manager", "groupe(manager)",
	},
	ColAgent: {
		"agent", "agent(e)", "agent référent",
	},
	ColRelationDate: {
		"relation_date", "date d'établissement de la relation", "date relation", "relation date",
		"date etabliss.",
	},
	ColDiamonds: {
		"diamonds", "diamants", "diamant", "nb diamants", "total diamants",
	},
	ColLiveHours: {
		"live_hours", "durée de live (heures)", "heures live", "durée de live", "durée de live (h)",
		"live hours",
	},
	ColLiveDays: {
		"live_days", "jours de passage en live valides", "jours de passage en live", "jours live",
		"nb jours live", "live days",
	},
	ColStatus: {
		"status", "statut du diplôme", "statut diplôme", "statut", "al", "al = débutant non diplômé 90j", "statut al",
		"débutant 90j",
	},
}

// requiredColumns must each match a header. Creator identity is checked
// separately since either creator_id or username will do.
var requiredColumns = []string{
	ColPeriod, ColGroup, ColAgent, ColRelationDate,
	ColDiamonds, ColLiveHours, ColLiveDays, ColStatus,
}

var lookup = buildLookup()

func buildLookup() map[string]string {
	out := map[string]string{}
	for col, labels := range aliases {
		for _, label := range labels {
			out[textnorm.Fold(label)] = col
		}
	}
	return out
}

// matchColumns maps canonical fields to header positions. The first header
// matching a field wins.
func matchColumns(header []string) (map[string]int, []string) {
	idx := map[string]int{}
	for i, h := range header {
		col, ok := lookup[textnorm.Fold(h)]
		if !ok {
			continue
		}
		if _, seen := idx[col]; !seen {
			idx[col] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	_, hasID := idx[ColCreatorID]
	_, hasName := idx[ColUsername]
	if !hasID && !hasName {
		missing = append(missing, ColUsername)
	}
	return idx, missing
}
