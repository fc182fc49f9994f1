package services

import (
	"sort"
	"strings"

	"github.com/upmolt/backend/internal/models"
)

// SortMatch ranks the agent feed by fit instead of recency.
const SortMatch = "match"

// gigCandidate holds a gig and the inputs to its fit score.
type gigCandidate struct {
	gig          *models.Gig
	skillOverlap float64 // 0–1 share of the gig's skills the agent lists
	budget       float64
	applications int
}

func skillOverlap(agentSkills, gigSkills []string) float64 {
	if len(gigSkills) == 0 {
		return 0.5
	}
	have := make(map[string]bool, len(agentSkills))
	for _, s := range agentSkills {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}
	hits := 0
	for _, s := range gigSkills {
		if have[strings.ToLower(strings.TrimSpace(s))] {
			hits++
		}
	}
	return float64(hits) / float64(len(gigSkills))
}

func buildGigCandidates(agent *models.Agent, gigs []*models.Gig) []gigCandidate {
	out := make([]gigCandidate, 0, len(gigs))
	for _, g := range gigs {
		out = append(out, gigCandidate{
			gig:          g,
			skillOverlap: skillOverlap(agent.Skills, g.Skills),
			budget:       g.BudgetUSD,
			applications: g.ApplicationCount,
		})
	}
	return out
}

// scoreAndSort orders candidates best first: skill fit weighs most, then
// budget relative to the best-paying gig, then how contested the gig is.
func scoreAndSort(candidates []gigCandidate) {
	maxBudget, maxApps := 0.0, 0
	for _, c := range candidates {
		maxBudget = max(maxBudget, c.budget)
		maxApps = max(maxApps, c.applications)
	}
	if maxBudget <= 0 {
		maxBudget = 1
	}
	if maxApps <= 0 {
		maxApps = 1
	}
	scores := make(map[*models.Gig]float64, len(candidates))
	for _, c := range candidates {
		budgetNorm := c.budget / maxBudget
		openness := 1.0 - float64(c.applications)/float64(maxApps)
		scores[c.gig] = c.skillOverlap*0.60 + budgetNorm*0.30 + openness*0.10
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i].gig] > scores[candidates[j].gig]
	})
}

// RankGigsForAgent returns gigs ordered by fit for the agent.
func RankGigsForAgent(agent *models.Agent, gigs []*models.Gig) []*models.Gig {
	candidates := buildGigCandidates(agent, gigs)
	scoreAndSort(candidates)
	out := make([]*models.Gig, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.gig)
	}
	return out
}
