package domain

import "testing"

func TestInsigneStatusOrdering(t *testing.T) {
	ordered := []InsigneStatus{
		InsigneStatusDraft,
		InsigneStatusGenerating,
		InsigneStatusAwaitingApproval,
		InsigneStatusApproved,
		InsigneStatusDelivered,
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Fatalf("expected %s to rank above %s", ordered[i], ordered[i-1])
		}
		if !ordered[i].AtLeast(ordered[i-1]) {
			t.Fatalf("expected %s to be at least %s", ordered[i], ordered[i-1])
		}
		if ordered[i-1].AtLeast(ordered[i]) {
			t.Fatalf("expected %s not to be at least %s", ordered[i-1], ordered[i])
		}
	}
}

func TestInsigneStatusUnknownRanksBelowDraft(t *testing.T) {
	unknown := InsigneStatus("archived")
	if unknown.Known() {
		t.Fatalf("expected archived to be unknown")
	}
	if unknown.Rank() >= InsigneStatusDraft.Rank() {
		t.Fatalf("expected unknown status to rank below draft, got %d", unknown.Rank())
	}
	if unknown.AtLeast(InsigneStatusDraft) {
		t.Fatalf("unknown status must not satisfy AtLeast(draft)")
	}
}

func TestParseInsigneStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want InsigneStatus
	}{
		{"", InsigneStatusDraft},
		{"  Draft ", InsigneStatusDraft},
		{"AWAITING_APPROVAL", InsigneStatusAwaitingApproval},
		{"delivered", InsigneStatusDelivered},
	}
	for _, tc := range cases {
		if got := ParseInsigneStatus(tc.raw); got != tc.want {
			t.Fatalf("ParseInsigneStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
