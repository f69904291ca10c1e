package model

import "time"

// Artifact is one single-page document produced by splitting a composite
// upload. Artifacts are immutable once registered.
type Artifact struct {
	ID            string
	Label         string // "<source-name> - page N"
	SequenceIndex int    // 1-based page number in the source
	Location      string // blob store reference
	ContentHash   string // hex BLAKE3 digest of the stored bytes
	Size          int64
	SourceName    string
	CreatedAt     time.Time
}

// Generation is the complete artifact set produced by one split call.
type Generation struct {
	Number    uint64
	Artifacts []Artifact
	CreatedAt time.Time
}

// Recipient is a directory entry. Email is the canonical identity.
type Recipient struct {
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Binding pairs one artifact with one recipient for a dispatch call.
type Binding struct {
	ArtifactID string `json:"artifactId" yaml:"artifactId"`
	Recipient  string `json:"recipient" yaml:"recipient"`
}

// MessageTemplate holds the fields shared by every message of a dispatch call.
type MessageTemplate struct {
	Subject    string
	Body       string
	CarbonCopy AddressList
}

// Attachment is one file attached to an outgoing message.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Message is a fully resolved outgoing email.
type Message struct {
	FromName    string
	FromAddress string
	To          string
	ToName      string
	Cc          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Outcome is the per-binding result of a dispatch call.
type Outcome string

const (
	OutcomeSent                    Outcome = "sent"
	OutcomeSkippedMissingArtifact  Outcome = "skipped-missing-artifact"
	OutcomeSkippedMissingRecipient Outcome = "skipped-missing-recipient"
	OutcomeFailed                  Outcome = "failed"
)

// DispatchResult records what happened to one binding.
type DispatchResult struct {
	ArtifactID string  `json:"artifactId"`
	Recipient  string  `json:"recipient"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
}

// DispatchCounts aggregates results by outcome.
type DispatchCounts struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// DispatchSummary lists one result per input binding, in input order.
type DispatchSummary struct {
	RunID      string           `json:"runId"`
	Generation uint64           `json:"generation"`
	Subject    string           `json:"subject"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Results    []DispatchResult `json:"summary"`
}

// Counts tallies the results of the summary.
func (s DispatchSummary) Counts() DispatchCounts {
	var c DispatchCounts
	for _, r := range s.Results {
		switch r.Outcome {
		case OutcomeSent:
			c.Sent++
		case OutcomeFailed:
			c.Failed++
		default:
			c.Skipped++
		}
	}
	return c
}

// DispatchRun is a stored dispatch summary.
type DispatchRun struct {
	ID         string           `json:"id"`
	Generation uint64           `json:"generation"`
	Subject    string           `json:"subject"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Counts     DispatchCounts   `json:"counts"`
	Results    []DispatchResult `json:"summary,omitempty"`
}
