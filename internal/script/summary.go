package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SummaryPrefix opens the comment line that records what a script submits.
const SummaryPrefix = "# gridlaunch:"

// ErrNoSummary indicates a script without a summary line.
var ErrNoSummary = errors.New("script: no gridlaunch summary line")

// Summary is written into every script so submit can recap the request without
// re-deriving it.
type Summary struct {
	JobName   string
	RunID     string
	Configs   int
	PerJob    int
	NumJobs   int
	GPUs      int
	MemoryGB  int
	TimeLimit string
}

// Line renders the summary as space-separated key=value pairs. Unset resources
// are left out.
func (s Summary) Line() string {
	parts := []string{
		"job=" + s.JobName,
		"run=" + s.RunID,
		"configs=" + strconv.Itoa(s.Configs),
		"per_job=" + strconv.Itoa(s.PerJob),
		"num_jobs=" + strconv.Itoa(s.NumJobs),
	}
	if s.GPUs > 0 {
		parts = append(parts, "gpus="+strconv.Itoa(s.GPUs))
	}
	if s.MemoryGB > 0 {
		parts = append(parts, "mem="+strconv.Itoa(s.MemoryGB)+"G")
	}
	if s.TimeLimit != "" {
		parts = append(parts, "time="+s.TimeLimit)
	}
	return SummaryPrefix + " " + strings.Join(parts, " ")
}

// ParseSummary finds and decodes the summary line in script text.
func ParseSummary(text string) (Summary, error) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, SummaryPrefix) {
			continue
		}
		return parseSummaryLine(strings.TrimPrefix(line, SummaryPrefix))
	}
	return Summary{}, ErrNoSummary
}

func parseSummaryLine(rest string) (Summary, error) {
	var s Summary
	for _, field := range strings.Fields(rest) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Summary{}, fmt.Errorf("script: malformed summary field %q", field)
		}
		var err error
		switch key {
		case "job":
			s.JobName = value
		case "run":
			s.RunID = value
		case "configs":
			s.Configs, err = strconv.Atoi(value)
		case "per_job":
			s.PerJob, err = strconv.Atoi(value)
		case "num_jobs":
			s.NumJobs, err = strconv.Atoi(value)
		case "gpus":
			s.GPUs, err = strconv.Atoi(value)
		case "mem":
			s.MemoryGB, err = strconv.Atoi(strings.TrimSuffix(value, "G"))
		case "time":
			s.TimeLimit = value
		}
		if err != nil {
			return Summary{}, fmt.Errorf("script: summary field %s: %w", key, err)
		}
	}
	return s, nil
}

// Recap is the one-line description shown before submission.
func (s Summary) Recap() string {
	gpus := strconv.Itoa(s.GPUs)
	mem := "-"
	if s.MemoryGB > 0 {
		mem = strconv.Itoa(s.MemoryGB) + "G"
	}
	limit := s.TimeLimit
	if limit == "" {
		limit = "-"
	}
	return fmt.Sprintf("n_gpus=%s, mem=%s, time=%s, num_jobs=%d", gpus, mem, limit, s.NumJobs)
}
