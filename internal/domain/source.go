package domain

// Source represents the ingestion source type for a channel.
type Source string

const (
	SourceFileImport Source = "FILE_IMPORT"
	SourceStreamFeed Source = "STREAM_FEED"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s Source) IsValid() bool {
	return s == SourceFileImport || s == SourceStreamFeed
}
