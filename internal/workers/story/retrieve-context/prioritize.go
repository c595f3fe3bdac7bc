package retrievecontext

import "finlit-workers/internal/models"

// Tier quotas.
const (
	tierAgeMatchLimit  = 3
	tierFinancialLimit = 2
	tierCulturalLimit  = 2

	// financialAgeWindow is how far a financial document's min_age may sit
	// from the target age.
	financialAgeWindow = 3
)

// Prioritize selects at most k documents for a target age:
//
//	tier 1: age range contains age (max 3)
//	tier 2: financial, min_age within 3 years of age (max 2)
//	tier 3: cultural or story (max 2)
//	tier 4: everything else
//
// Tiers are concatenated in order and truncated to k. Retrieval order is
// kept inside a tier. A nil age keeps the retrieval order as tier 0.
func Prioritize(docs []models.RetrievedDocument, age *int, k int) []models.PrioritizedDocument {
	if k <= 0 || len(docs) == 0 {
		return []models.PrioritizedDocument{}
	}

	if age == nil {
		n := len(docs)
		if n > k {
			n = k
		}
		out := make([]models.PrioritizedDocument, n)
		for i := 0; i < n; i++ {
			out[i] = models.PrioritizedDocument{Document: docs[i], Tier: 0}
		}
		return out
	}

	a := *age
	taken := make([]bool, len(docs))
	out := make([]models.PrioritizedDocument, 0, k)

	pick := func(tier, limit int, match func(models.RetrievedDocument) bool) {
		count := 0
		for i, d := range docs {
			if limit >= 0 && count >= limit {
				return
			}
			if taken[i] || !match(d) {
				continue
			}
			taken[i] = true
			out = append(out, models.PrioritizedDocument{Document: d, Tier: tier})
			count++
		}
	}

	pick(1, tierAgeMatchLimit, func(d models.RetrievedDocument) bool {
		return d.ContainsAge(a)
	})
	pick(2, tierFinancialLimit, func(d models.RetrievedDocument) bool {
		return d.Metadata.ContentType == models.ContentFinancial && abs(d.Metadata.MinAge-a) <= financialAgeWindow
	})
	pick(3, tierCulturalLimit, func(d models.RetrievedDocument) bool {
		return d.Metadata.ContentType == models.ContentCultural || d.Metadata.ContentType == models.ContentStory
	})
	pick(4, -1, func(models.RetrievedDocument) bool { return true })

	if len(out) > k {
		out = out[:k]
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
