package types

import (
	"strings"
	"time"
)

// ApplicationRecord is the backend's durable representation of one run
type ApplicationRecord struct {
	Identifier       string            `json:"identifier"`
	CreatedAt        time.Time         `json:"createdAt"`
	Status           string            `json:"status"`
	Stopped          bool              `json:"stopped"`
	Events           []HistoryEvent    `json:"events"`
	Job              *JobSnapshot      `json:"job,omitempty"`
	Documents        []Document        `json:"documents,omitempty"`
	AutomationResult *AutomationResult `json:"automationResult,omitempty"`
}

// Clone returns a deep copy of the record
func (r *ApplicationRecord) Clone() *ApplicationRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Events = append([]HistoryEvent(nil), r.Events...)
	out.Documents = append([]Document(nil), r.Documents...)
	if r.Job != nil {
		job := *r.Job
		out.Job = &job
	}
	if r.AutomationResult != nil {
		res := *r.AutomationResult
		res.Documents = append([]Document(nil), r.AutomationResult.Documents...)
		if r.AutomationResult.Output != nil {
			res.Output = make(map[string]any, len(r.AutomationResult.Output))
			for k, v := range r.AutomationResult.Output {
				res.Output[k] = v
			}
		}
		out.AutomationResult = &res
	}
	return &out
}

// HistoryEvent is the durable counterpart of a live event message
type HistoryEvent struct {
	Identifier string    `json:"identifier"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
}

// AutomationResult is attached to a record once the run concludes
type AutomationResult struct {
	Success   bool           `json:"success"`
	Output    map[string]any `json:"output,omitempty"`
	Documents []Document     `json:"documents,omitempty"`
}

// Document kinds after normalization
const (
	DocumentResume      = "resume"
	DocumentCoverLetter = "cover_letter"
)

// Document is a generated artifact reference (résumé, cover letter)
type Document struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// DocumentKind normalizes the free-form type labels the backend uses.
// Returns "" when the label is not recognized.
func DocumentKind(label string) string {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.NewReplacer("_", " ", "-", " ").Replace(norm)
	switch norm {
	case "resume", "résumé", "cv", "lebenslauf":
		return DocumentResume
	case "cover letter", "coverletter", "anschreiben", "motivation letter":
		return DocumentCoverLetter
	}
	return ""
}

// Resume is a stored résumé the user can pick for a run
type Resume struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// LatestResume returns the most recently updated résumé, or nil for an empty list.
// Ties keep the earlier list position.
func LatestResume(resumes []Resume) *Resume {
	if len(resumes) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(resumes); i++ {
		if resumes[i].UpdatedAt.After(resumes[best].UpdatedAt) {
			best = i
		}
	}
	r := resumes[best]
	return &r
}

// PendingJob is the single-use hand-off payload written by another screen
type PendingJob struct {
	Job      *JobDetails `json:"job,omitempty"`
	Resume   *Resume     `json:"resume,omitempty"`
	AutoMode bool        `json:"autoMode,omitempty"`
}
