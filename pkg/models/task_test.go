package models

import (
	"errors"
	"testing"
	"time"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"ready is valid", TaskStatusReady, true},
		{"blocked is valid", TaskStatusBlocked, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"ready_for_review is valid", TaskStatusReadyForReview, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"cancelled is valid", TaskStatusCancelled, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_TerminalAndActive(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
		active   bool
	}{
		{TaskStatusPending, false, true},
		{TaskStatusReady, false, true},
		{TaskStatusBlocked, false, true},
		{TaskStatusInProgress, false, true},
		{TaskStatusReadyForReview, false, true},
		{TaskStatusCompleted, true, false},
		{TaskStatusFailed, true, false},
		{TaskStatusCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.status.Active(); got != tt.active {
				t.Errorf("Active() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestPriority_Rank(t *testing.T) {
	if !(PriorityCritical.Rank() < PriorityHigh.Rank() &&
		PriorityHigh.Rank() < PriorityMedium.Rank() &&
		PriorityMedium.Rank() < PriorityLow.Rank()) {
		t.Error("priority ranks are not strictly ordered")
	}
	if Priority("").Rank() <= PriorityLow.Rank() {
		t.Error("unknown priority should sort after low")
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{"critical", PriorityCritical},
		{"P1", PriorityCritical},
		{"high", PriorityHigh},
		{"p4", PriorityLow},
		{"", PriorityMedium},
		{"whatever", PriorityMedium},
	}
	for _, tt := range tests {
		if got := ParsePriority(tt.in); got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTask_ValidateAssignment(t *testing.T) {
	task := &Task{ID: "t1"}
	if err := task.ValidateAssignment(); err != nil {
		t.Errorf("unassigned task: unexpected error %v", err)
	}

	task.AssignWorker("w1")
	if err := task.ValidateAssignment(); err != nil {
		t.Errorf("worker-assigned task: unexpected error %v", err)
	}

	task.AssignTeam("team1")
	if task.AssignedWorkerID != "" {
		t.Errorf("AssignTeam should clear worker, got %q", task.AssignedWorkerID)
	}

	task.AssignedWorkerID = "w1"
	if err := task.ValidateAssignment(); !errors.Is(err, ErrAssignmentConflict) {
		t.Errorf("ValidateAssignment() = %v, want ErrAssignmentConflict", err)
	}

	task.Unassign()
	if task.IsAssigned() {
		t.Error("Unassign should clear both assignments")
	}
}

func TestTask_Clone(t *testing.T) {
	now := time.Now()
	orig := &Task{
		ID:            "t1",
		DependsOn:     []string{"a"},
		AffectedFiles: []string{"src/a.go"},
		CompletedAt:   &now,
	}

	c := orig.Clone()
	c.DependsOn[0] = "b"
	c.AffectedFiles = append(c.AffectedFiles, "src/b.go")
	*c.CompletedAt = now.Add(time.Hour)

	if orig.DependsOn[0] != "a" {
		t.Error("Clone shares DependsOn backing array")
	}
	if len(orig.AffectedFiles) != 1 {
		t.Error("Clone shares AffectedFiles")
	}
	if !orig.CompletedAt.Equal(now) {
		t.Error("Clone shares CompletedAt pointer")
	}
	if (*Task)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ab12cd34-ffff-0000", "ab12cd34"},
		{"ab12cd34", "ab12cd34"},
		{"abc", "abc"},
	}
	for _, tt := range tests {
		if got := ShortID(tt.in); got != tt.want {
			t.Errorf("ShortID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
