package jobs

import "strings"

type Candidates struct {
	Items []*Candidate
}

// Candidate is a job seeker profile. AppliedJobIDs lists postings the
// candidate already applied to.
type Candidate struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name,omitempty"`
	Email         string   `json:"email,omitempty"`
	Headline      string   `json:"headline,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Skills        []string `json:"skills,omitempty"`
	AppliedJobIDs []string `json:"applied_job_ids,omitempty"`
}

// Text is the input handed to the embedding model for this profile.
func (c *Candidate) Text() string {
	parts := []string{c.Headline}
	if len(c.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(c.Skills, ", "))
	}
	parts = append(parts, c.Summary)

	return joinNonEmpty(parts)
}

func (c *Candidates) Len() int {
	return len(c.Items)
}

func (c *Candidates) FindByID(id string) *Candidate {
	for _, candidate := range c.Items {
		if candidate.ID == id {
			return candidate
		}
	}
	return nil
}
