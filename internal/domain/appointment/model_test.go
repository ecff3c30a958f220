package appointment

import "testing"

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusCheckedIn, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusNoShow, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusCheckedIn, StatusCompleted, true},
		{StatusCheckedIn, StatusCancelled, false},
		{StatusCheckedIn, StatusScheduled, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusNoShow, StatusCheckedIn, false},
		{StatusCompleted, StatusCompleted, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusScheduled, StatusCheckedIn, Status("Pending")} {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

// No sequence of legal moves leaves a terminal status.
func TestStatus_TerminalIsAbsorbing(t *testing.T) {
	for _, from := range allStatuses {
		if !from.Terminal() {
			continue
		}
		for _, to := range allStatuses {
			if to != from && from.CanTransitionTo(to) {
				t.Errorf("terminal %s can move to %s", from, to)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus("Checked-In"); !ok || s != StatusCheckedIn {
		t.Errorf("expected Checked-In, got %q %v", s, ok)
	}
	for _, bad := range []string{"", "scheduled", "Done", "Checked In"} {
		if _, ok := ParseStatus(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	if d, err := NormalizeDate(" 2025-03-01 "); err != nil || d != "2025-03-01" {
		t.Errorf("got %q, %v", d, err)
	}
	for _, bad := range []string{"2025-02-30", "01/03/2025", "2025-3-1", ""} {
		if _, err := NormalizeDate(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestNormalizeClock(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"09:30", "09:30", true},
		{"09:30:00", "09:30", true},
		{"23:59", "23:59", true},
		{"09:30:15", "", false},
		{"24:00", "", false},
		{"9am", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeClock(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("%q: got %q, %v", tt.in, got, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%q: expected error", tt.in)
		}
	}
}

func TestBookRequest_MissingFields(t *testing.T) {
	req := &BookRequest{PatientIC: "  ", AppointmentTime: "10:00"}
	got := req.missingFields()
	want := []string{"patientIC", "doctorId", "appointmentDate"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
