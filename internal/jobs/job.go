package jobs

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	JobIDField      = "ID"
	JobCompanyField = "CompanyID"
)

type Jobs struct {
	Items []*Job
}

type Job struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Skills      []string  `json:"skills,omitempty"`
	Location    string    `json:"location,omitempty"`
	URL         string    `json:"url,omitempty"`
	Company     Company   `json:"company,omitempty"`
	PostedAt    time.Time `json:"posted_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

type Company struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Text is the input handed to the embedding model for this posting.
func (j *Job) Text() string {
	parts := []string{j.Title, j.Company.Name}
	if len(j.Skills) > 0 {
		parts = append(parts, "Skills: "+strings.Join(j.Skills, ", "))
	}
	parts = append(parts, j.Location, j.Description)

	return joinNonEmpty(parts)
}

// Expired reports whether the posting is past its expiry. Postings without
// an expiry never expire.
func (j *Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && !now.Before(j.ExpiresAt)
}

func (j *Job) GetStringField(name string) string {
	switch name {
	case JobIDField:
		return j.ID
	case JobCompanyField:
		return j.Company.ID
	default:
		return ""
	}
}

func (v *Jobs) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Items)
}

func (v *Jobs) FindByID(id string) *Job {
	if v == nil {
		return nil
	}
	for _, job := range v.Items {
		if job.ID == id {
			return job
		}
	}
	return nil
}

func (v *Jobs) IDs() []string {
	ids := make([]string, 0, len(v.Items))
	for _, job := range v.Items {
		ids = append(ids, job.ID)
	}
	return ids
}

// CompanyIDs returns the distinct company ids of the list, sorted.
func (v *Jobs) CompanyIDs() []string {
	ids := make([]string, 0, len(v.Items))
	for _, job := range v.Items {
		ids = append(ids, job.Company.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Exclude removes every job whose field matches one of targets and returns the
// removed job ids. The order of the remaining jobs is kept.
func (v *Jobs) Exclude(name string, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}

	return v.ExcludeFunc(func(job *Job) bool {
		_, ok := set[job.GetStringField(name)]
		return ok
	})
}

// ExcludeFunc removes every job for which drop returns true and returns the removed ids.
func (v *Jobs) ExcludeFunc(drop func(*Job) bool) []string {
	var excluded []string
	v.Items = slices.DeleteFunc(v.Items, func(job *Job) bool {
		if drop(job) {
			excluded = append(excluded, job.ID)
			return true
		}
		return false
	})
	return excluded
}

// Active returns the postings that are not expired at now.
func (v *Jobs) Active(now time.Time) *Jobs {
	active := &Jobs{}
	for _, job := range v.Items {
		if !job.Expired(now) {
			active.Items = append(active.Items, job)
		}
	}
	return active
}

// Report by company.
func (v *Jobs) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, job := range v.Items {
		key := fmt.Sprintf("%s (%s)", job.Company.Name, job.Company.ID)
		entry := map[string]string{
			"title":  job.Title,
			"url":    job.URL,
			"posted": job.PostedAt.Format(time.DateOnly),
		}
		if job.Location != "" {
			entry["location"] = job.Location
		}
		if len(job.Skills) > 0 {
			entry["skills"] = strings.Join(job.Skills, ", ")
		}
		report[key] = append(report[key], entry)
	}
	return report
}

func joinNonEmpty(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
