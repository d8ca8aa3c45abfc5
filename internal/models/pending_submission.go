package models

import (
	"time"
)

// VerifiedMarker is the value written by the one-shot verification update.
const VerifiedMarker = "VERIFIED"

// PendingSubmission is a validated submission persisted until its owner
// confirms intent via the emailed verification link. The _id doubles as the
// capability token embedded in that link.
type PendingSubmission struct {
	Token        string     `bson:"_id" json:"token"`
	Submission   Submission `bson:"submission" json:"submission"`
	SourceOrigin string     `bson:"source_origin" json:"source_origin"`
	// Verified is absent while pending and set to VerifiedMarker exactly
	// once; the transition is guarded by a conditional write.
	Verified  string    `bson:"verified,omitempty" json:"verified,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
