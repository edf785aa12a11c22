package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
)

var ErrInvalidFixture = errors.New("invalid fixture")

// LoadJobs reads a JSON array of job postings from path.
func LoadJobs(path string) (*Jobs, error) {
	var items []*Job
	if err := decodeFile(path, &items); err != nil {
		return nil, err
	}

	for i, job := range items {
		if job == nil || job.ID == "" || job.Company.ID == "" {
			return nil, fmt.Errorf("%w: job #%d in %s needs an id and a company id", ErrInvalidFixture, i, path)
		}
	}

	return &Jobs{Items: items}, nil
}

// LoadCandidates reads a JSON array of candidate profiles from path.
func LoadCandidates(path string) (*Candidates, error) {
	var items []*Candidate
	if err := decodeFile(path, &items); err != nil {
		return nil, err
	}

	for i, candidate := range items {
		if candidate == nil || candidate.ID == "" {
			return nil, fmt.Errorf("%w: candidate #%d in %s needs an id", ErrInvalidFixture, i, path)
		}
	}

	return &Candidates{Items: items}, nil
}

func decodeFile(path string, result any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFixture, path, err)
	}

	return Decode(items, result)
}

// Decode maps loosely typed JSON items onto result using the json tags.
// Timestamps are RFC3339 strings.
func Decode(items any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     result,
		TagName:    "json",
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(items); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	return nil
}
