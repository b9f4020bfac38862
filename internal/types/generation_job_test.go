package types

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusFailed, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusFailed, JobStatusPending, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminalJobStatus(t *testing.T) {
	if !IsTerminalJobStatus(JobStatusCompleted) || !IsTerminalJobStatus(JobStatusFailed) {
		t.Fatalf("completed and failed must be terminal")
	}
	if IsTerminalJobStatus(JobStatusPending) || IsTerminalJobStatus(JobStatusProcessing) {
		t.Fatalf("pending and processing must not be terminal")
	}
}
