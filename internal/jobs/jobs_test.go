package jobs

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func sample() *Jobs {
	return &Jobs{Items: []*Job{
		{ID: "1", Title: "Go Developer", Company: Company{ID: "acme", Name: "Acme"}, PostedAt: now.Add(-48 * time.Hour)},
		{ID: "2", Title: "SRE", Company: Company{ID: "globex", Name: "Globex"}, ExpiresAt: now.Add(-time.Hour)},
		{ID: "3", Title: "Data Engineer", Company: Company{ID: "acme", Name: "Acme"}, ExpiresAt: now.Add(time.Hour)},
		{ID: "4", Title: "QA", Company: Company{ID: "initech", Name: "Initech"}},
	}}
}

func TestExclude(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		field    string
		targets  []string
		excluded []string
		left     []string
	}{
		{name: "by id", field: JobIDField, targets: []string{"2", "4", "missing"}, excluded: []string{"2", "4"}, left: []string{"1", "3"}},
		{name: "by company removes every posting", field: JobCompanyField, targets: []string{"acme"}, excluded: []string{"1", "3"}, left: []string{"2", "4"}},
		{name: "no targets", field: JobIDField, left: []string{"1", "2", "3", "4"}},
		{name: "unknown field", field: "Salary", targets: []string{"1"}, left: []string{"1", "2", "3", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			list := sample()
			excluded := list.Exclude(tt.field, tt.targets)

			if !reflect.DeepEqual(excluded, tt.excluded) {
				t.Fatalf("expected excluded %v, got %v", tt.excluded, excluded)
			}
			if !reflect.DeepEqual(list.IDs(), tt.left) {
				t.Fatalf("expected left %v, got %v", tt.left, list.IDs())
			}
		})
	}
}

func TestActive(t *testing.T) {
	t.Parallel()

	active := sample().Active(now)
	if !reflect.DeepEqual(active.IDs(), []string{"1", "3", "4"}) {
		t.Fatalf("unexpected active jobs: %v", active.IDs())
	}

	expiring := &Job{ExpiresAt: now}
	if !expiring.Expired(now) {
		t.Fatalf("expected a job to be expired at its expiry instant")
	}
}

func TestCompanyIDs(t *testing.T) {
	t.Parallel()

	if got := sample().CompanyIDs(); !reflect.DeepEqual(got, []string{"acme", "globex", "initech"}) {
		t.Fatalf("unexpected companies: %v", got)
	}
}

func TestReportByCompany(t *testing.T) {
	t.Parallel()

	list := sample()
	list.Items[0].Skills = []string{"go", "sql"}
	list.Items[0].URL = "https://jobs.example.com/1"

	report := list.ReportByCompany()

	entries, ok := report["Acme (acme)"]
	if !ok {
		t.Fatalf("expected company key in report")
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	entry := entries[0]
	if entry["title"] != "Go Developer" || entry["url"] != "https://jobs.example.com/1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["skills"] != "go, sql" {
		t.Fatalf("unexpected skills: %q", entry["skills"])
	}
	if _, ok := entries[1]["skills"]; ok {
		t.Fatalf("did not expect skills for a posting without them")
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	job := &Job{Title: "Go Developer", Company: Company{Name: "Acme"}, Skills: []string{"go"}, Description: "  build services  "}
	if got := job.Text(); got != "Go Developer\nAcme\nSkills: go\nbuild services" {
		t.Fatalf("unexpected job text: %q", got)
	}

	candidate := &Candidate{Headline: "Backend engineer", Summary: "ten years of Go"}
	if got := candidate.Text(); got != "Backend engineer\nten years of Go" {
		t.Fatalf("unexpected candidate text: %q", got)
	}
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadJobs(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, `[
		{"id": "j1", "title": "Go Developer", "skills": ["go", "grpc"],
		 "company": {"id": "acme", "name": "Acme"},
		 "posted_at": "2025-05-30T10:00:00Z", "expires_at": "2025-07-01T00:00:00Z"},
		{"id": "j2", "title": "SRE", "company": {"id": "globex"}}
	]`)

	list, err := LoadJobs(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("expected 2 jobs, got %d", list.Len())
	}

	job := list.FindByID("j1")
	if job == nil {
		t.Fatalf("expected j1")
	}
	if !job.PostedAt.Equal(time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected posted_at: %v", job.PostedAt)
	}
	if job.Company.Name != "Acme" || len(job.Skills) != 2 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if !list.FindByID("j2").ExpiresAt.IsZero() {
		t.Fatalf("expected no expiry for j2")
	}
}

func TestLoadJobsRejectsBadFixtures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{`},
		{name: "missing company", body: `[{"id": "j1"}]`},
		{name: "bad timestamp", body: `[{"id": "j1", "company": {"id": "c"}, "posted_at": "yesterday"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadJobs(writeFixture(t, tt.body)); !errors.Is(err, ErrInvalidFixture) {
				t.Fatalf("expected invalid fixture, got %v", err)
			}
		})
	}
}

func TestLoadCandidates(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, `[{"id": "c1", "name": "Ann", "headline": "Go engineer", "applied_job_ids": ["j1"]}]`)

	list, err := LoadCandidates(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := list.FindByID("c1")
	if c == nil || c.Name != "Ann" || !reflect.DeepEqual(c.AppliedJobIDs, []string{"j1"}) {
		t.Fatalf("unexpected candidate: %+v", c)
	}

	if _, err := LoadCandidates(writeFixture(t, `[{"name": "nobody"}]`)); err == nil || !strings.Contains(err.Error(), "needs an id") {
		t.Fatalf("expected missing id error, got %v", err)
	}
}
