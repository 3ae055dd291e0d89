package filtering

import "github.com/spigell/hh-screener/internal/models"

// Candidate is an application together with the vacancy it answers.
type Candidate struct {
	Application *models.Application
	Vacancy     *models.Vacancy
}

type Candidates struct {
	Items []*Candidate
}

func NewCandidates(items ...*Candidate) *Candidates {
	return &Candidates{Items: items}
}

func (c *Candidates) Len() int {
	return len(c.Items)
}

// Exclude drops the candidates matching drop and returns their application ids.
func (c *Candidates) Exclude(drop func(*Candidate) bool) []string {
	var excluded []string
	kept := c.Items[:0]
	for _, item := range c.Items {
		if drop(item) {
			excluded = append(excluded, item.Application.ID.String())
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept
	return excluded
}
