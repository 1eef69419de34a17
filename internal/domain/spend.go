package domain

// SpendRecord represents a raw spend observation for a channel.
// Corresponds to spend_records table in PostgreSQL.
type SpendRecord struct {
	ID          int64   // BIGSERIAL primary key
	ChannelID   string  // FK to channels
	BatchID     string  // ingestion batch identifier
	RecordIndex int     // index of record within batch
	PeriodStart int64   // Unix timestamp in milliseconds
	Spend       float64 // spend amount in account currency
	Impressions float64 // delivered impressions (0 when unreported)
	CreatedAt   int64   // record creation timestamp (ms)
}
