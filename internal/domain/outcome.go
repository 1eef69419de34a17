package domain

// OutcomeRecord represents a raw KPI observation.
// Corresponds to outcome_records table in PostgreSQL.
type OutcomeRecord struct {
	ID          int64   // BIGSERIAL primary key
	Metric      string  // KPI name, e.g. "conversions"
	BatchID     string  // ingestion batch identifier
	RecordIndex int     // index of record within batch
	PeriodStart int64   // Unix timestamp in milliseconds
	Value       float64 // observed KPI value
	CreatedAt   int64   // record creation timestamp (ms)
}

// Default KPI metric when a source does not name one.
const MetricConversions = "conversions"
