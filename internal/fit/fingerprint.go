package fit

import (
	"sort"

	"mediamix-lab/internal/idhash"
)

// Fingerprint renders a canonical digest of the input data. Channels are
// fingerprinted in channel-ID order, so two inputs holding the same series
// produce the same digest regardless of channel order. Stored on the model
// run as its data fingerprint and recomputed byte-for-byte during replay.
func (in *FitInput) Fingerprint() string {
	f := idhash.NewFingerprinter()
	f.Add("INPUT", in.Metric, idhash.FormatInt(int64(in.PeriodSeconds)))
	for i, start := range in.PeriodStarts {
		f.Add("OUTCOME", idhash.FormatInt(start), idhash.FormatFloat(in.Outcome[i]))
	}

	sorted := make([]*ChannelSeries, len(in.Channels))
	copy(sorted, in.Channels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChannelID < sorted[j].ChannelID })
	for _, ch := range sorted {
		for i, start := range in.PeriodStarts {
			f.Add("SPEND", ch.ChannelID, idhash.FormatInt(start), idhash.FormatFloat(ch.Spend[i]))
		}
	}
	return f.Sum()
}
