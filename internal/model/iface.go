package model

import "context"

// BlobStore is durable byte storage addressed by an opaque location reference.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// ArtifactSource resolves artifacts of the current generation.
type ArtifactSource interface {
	Get(id string) (Artifact, error)
	Generation() uint64
}

// RecipientLookup resolves a recipient identity in the directory.
type RecipientLookup interface {
	Lookup(ctx context.Context, email string) (Recipient, error)
}

// Directory is the recipient directory contract used by the HTTP API.
type Directory interface {
	RecipientLookup
	ListRecipients(ctx context.Context) ([]Recipient, error)
	UpsertRecipient(ctx context.Context, email, displayName string) (Recipient, error)
	DeleteRecipient(ctx context.Context, email string) error
	ImportRecipients(ctx context.Context, recipients []Recipient) (int, error)
}

// Transport sends one email message.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// DispatchRecorder stores completed dispatch summaries.
type DispatchRecorder interface {
	RecordDispatch(ctx context.Context, summary DispatchSummary) error
}

// DispatchHistory reads stored dispatch runs.
type DispatchHistory interface {
	ListDispatches(ctx context.Context, limit int) ([]DispatchRun, error)
	GetDispatch(ctx context.Context, id string) (DispatchRun, error)
}
