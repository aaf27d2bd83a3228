package domain

import (
	"strings"
	"time"
)

// InsigneStatus tracks how far a report record has progressed through its lifecycle.
type InsigneStatus string

const (
	// InsigneStatusDraft is the state assigned at ingestion, before generation starts.
	InsigneStatusDraft InsigneStatus = "draft"
	// InsigneStatusGenerating marks a record claimed by an in-flight generation call.
	InsigneStatusGenerating InsigneStatus = "generating"
	// InsigneStatusAwaitingApproval marks a record whose content is ready for review.
	InsigneStatusAwaitingApproval InsigneStatus = "awaiting_approval"
	// InsigneStatusApproved marks a record cleared by an operator.
	InsigneStatusApproved InsigneStatus = "approved"
	// InsigneStatusDelivered marks a record whose results notification was dispatched.
	InsigneStatusDelivered InsigneStatus = "delivered"
)

var statusRanks = map[InsigneStatus]int{
	InsigneStatusDraft:            0,
	InsigneStatusGenerating:       1,
	InsigneStatusAwaitingApproval: 2,
	InsigneStatusApproved:         3,
	InsigneStatusDelivered:        4,
}

// Known reports whether the status is one of the recognised lifecycle states.
func (s InsigneStatus) Known() bool {
	_, ok := statusRanks[s]
	return ok
}

// Rank returns the ordinal position of the status in the happy-path ordering.
// Unknown statuses rank below draft so they never mask a real state.
func (s InsigneStatus) Rank() int {
	if rank, ok := statusRanks[s]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether the status has reached or passed the other state.
func (s InsigneStatus) AtLeast(other InsigneStatus) bool {
	return s.Rank() >= other.Rank()
}

// ParseInsigneStatus normalises a raw status string, defaulting to draft when empty.
func ParseInsigneStatus(raw string) InsigneStatus {
	trimmed := InsigneStatus(strings.ToLower(strings.TrimSpace(raw)))
	if trimmed == "" {
		return InsigneStatusDraft
	}
	return trimmed
}

// Insigne is one report lifecycle instance created from a questionnaire submission.
type Insigne struct {
	ID          string
	Status      InsigneStatus
	AccessToken string
	ClientEmail string

	ReportText   string
	MottoEnglish string
	MottoLatin   string

	// GenerationClaimedAt stamps the moment a generation call claimed this record.
	// Nil means no live claim; status generating with a nil claim is retryable.
	GenerationClaimedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GeneratedContent carries the three content fields produced by the generation call.
type GeneratedContent struct {
	ReportText   string
	MottoEnglish string
	MottoLatin   string
}

// SubmissionLookup maps an external submission identifier to the Insigne it created.
type SubmissionLookup struct {
	SubmissionID string
	InsigneID    string
	CreatedAt    time.Time
}

// AnswersRecord stores one raw questionnaire payload owned by an Insigne.
// Records are append-only; generation always consumes the most recent one.
type AnswersRecord struct {
	ID        string
	InsigneID string
	Payload   map[string]any
	CreatedAt time.Time
}

// Asset references a stored binary object owned by an Insigne.
type Asset struct {
	ID          string
	InsigneID   string
	AssetType   string
	StoragePath string
	CreatedAt   time.Time
}

// SignedAsset pairs an asset with the outcome of a signed URL request.
// Exactly one of SignedURL and Error is populated.
type SignedAsset struct {
	AssetType   string
	StoragePath string
	SignedURL   string
	Error       string
	ExpiresAt   time.Time
}
