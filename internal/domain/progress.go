package domain

// IngestProgress represents the ingestion high-water mark for a source.
// Corresponds to ingest_progress table in PostgreSQL.
type IngestProgress struct {
	SourceID        string // source identifier
	LastBatchSeq    int64  // highest contiguous batch sequence applied
	LastPeriodStart int64  // latest period start observed (ms)
	UpdatedAt       int64  // last update timestamp (ms)
}
