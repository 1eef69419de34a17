package fit

import (
	"testing"
)

func fingerprintInput() *FitInput {
	return &FitInput{
		Metric:        "conversions",
		PeriodSeconds: 86400,
		PeriodStarts:  []int64{0, 86400000, 172800000},
		Channels: []*ChannelSeries{
			{ChannelID: "ch-a", Spend: []float64{100, 200, 300}},
			{ChannelID: "ch-b", Spend: []float64{50, 60, 70}},
		},
		Outcome: []float64{10, 20, 30},
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	first := fingerprintInput().Fingerprint()
	if first == "" {
		t.Fatal("empty fingerprint")
	}
	for i := 0; i < 5; i++ {
		if got := fingerprintInput().Fingerprint(); got != first {
			t.Fatalf("fingerprint changed between runs: %s vs %s", got, first)
		}
	}
}

func TestFingerprint_ChannelOrderIndependent(t *testing.T) {
	in := fingerprintInput()
	swapped := fingerprintInput()
	swapped.Channels[0], swapped.Channels[1] = swapped.Channels[1], swapped.Channels[0]

	if in.Fingerprint() != swapped.Fingerprint() {
		t.Error("fingerprint depends on channel order")
	}
}

func TestFingerprint_SensitiveToValues(t *testing.T) {
	base := fingerprintInput().Fingerprint()

	changedSpend := fingerprintInput()
	changedSpend.Channels[1].Spend[2] = 71
	if changedSpend.Fingerprint() == base {
		t.Error("fingerprint ignores spend change")
	}

	changedOutcome := fingerprintInput()
	changedOutcome.Outcome[0] = 11
	if changedOutcome.Fingerprint() == base {
		t.Error("fingerprint ignores outcome change")
	}

	changedMetric := fingerprintInput()
	changedMetric.Metric = "revenue"
	if changedMetric.Fingerprint() == base {
		t.Error("fingerprint ignores metric change")
	}
}
