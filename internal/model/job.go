package model

import "time"

// JobStatus represents the current state of a batch research job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ContactStatus represents the state of a single contact within a job.
type ContactStatus string

const (
	ContactStatusPending    ContactStatus = "pending"
	ContactStatusProcessing ContactStatus = "processing"
	ContactStatusCompleted  ContactStatus = "completed"
	ContactStatusFailed     ContactStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s ContactStatus) Terminal() bool {
	return s == ContactStatusCompleted || s == ContactStatusFailed
}

// Contact is a single contact submitted for research.
type Contact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Company     string `json:"company,omitempty"`
	LinkedInURL string `json:"linkedinUrl,omitempty"`
}

// ContactResult tracks the research outcome for one contact in a job.
type ContactResult struct {
	ContactID   string        `json:"contactId"`
	ContactName string        `json:"contactName"`
	Status      ContactStatus `json:"status"`
	Research    string        `json:"research,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// ControlAction is an operator request against a running job. Accepted and
// recorded for the dashboard; execution is not altered.
type ControlAction string

const (
	ControlPause  ControlAction = "pause"
	ControlResume ControlAction = "resume"
	ControlCancel ControlAction = "cancel"
)

// JobSnapshot is a point-in-time copy of a job's state. Contacts are listed
// in submission order.
type JobSnapshot struct {
	JobID             string          `json:"jobId"`
	Status            JobStatus       `json:"status"`
	TotalContacts     int             `json:"totalContacts"`
	ProcessedContacts int             `json:"processedContacts"`
	SuccessCount      int             `json:"successCount"`
	FailureCount      int             `json:"failureCount"`
	Contacts          []ContactResult `json:"contacts"`
	Error             string          `json:"error,omitempty"`
	LastControl       ControlAction   `json:"lastControl,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	StartedAt         *time.Time      `json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
}

// PercentComplete returns the rounded completion percentage.
func (s JobSnapshot) PercentComplete() int {
	if s.TotalContacts == 0 {
		return 0
	}
	return int(float64(s.ProcessedContacts)/float64(s.TotalContacts)*100 + 0.5)
}
