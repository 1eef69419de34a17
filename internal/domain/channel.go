package domain

// Channel represents a media channel whose spend is modeled.
// Corresponds to channels table in PostgreSQL.
type Channel struct {
	ChannelID   string // PRIMARY KEY, deterministic hash
	Name        string // advertiser-facing channel name
	Medium      string // tv | radio | print | ooh | digital | search | social | other
	Source      Source // FILE_IMPORT | STREAM_FEED
	FirstSeenAt int64  // Unix timestamp in milliseconds
	CreatedAt   int64  // record creation timestamp (ms)
}

// Supported channel mediums
const (
	MediumTV      = "tv"
	MediumRadio   = "radio"
	MediumPrint   = "print"
	MediumOOH     = "ooh"
	MediumDigital = "digital"
	MediumSearch  = "search"
	MediumSocial  = "social"
	MediumOther   = "other"
)

// IsValidMedium checks if the medium is one of the supported values.
func IsValidMedium(m string) bool {
	switch m {
	case MediumTV, MediumRadio, MediumPrint, MediumOOH,
		MediumDigital, MediumSearch, MediumSocial, MediumOther:
		return true
	}
	return false
}
