package domain

import "testing"

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "00:00"},
		{10, "00:10"},
		{59, "00:59"},
		{60, "01:00"},
		{3599, "59:59"},
		{3600, "01:00:00"},
		{3750, "01:02:30"},
		{36610, "10:10:10"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.in); got != c.want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if TaskNotStarted.Terminal() || TaskActive.Terminal() {
		t.Fatal("not_started and active are not terminal")
	}
	if !TaskCompleted.Terminal() || !TaskQuit.Terminal() {
		t.Fatal("completed and quit are terminal")
	}
}

func TestEventID(t *testing.T) {
	ev := Event{UserID: "u1", Kind: EventComplete, TSUnixMilli: 1700000000000}
	if got := ev.EventID(); got != "u1-complete-1700000000000" {
		t.Fatalf("unexpected event id: %q", got)
	}

	// разный момент — разный id даже у одного владельца и вида
	other := ev
	other.TSUnixMilli++
	if other.EventID() == ev.EventID() {
		t.Fatal("ids must differ by timestamp")
	}
}
