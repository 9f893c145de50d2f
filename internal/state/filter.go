package state

import (
	"strings"

	"github.com/ShayCichocki/hollon/pkg/models"
)

// Match reports whether t satisfies the filter.
func (f TaskFilter) Match(t *models.Task) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if f.AssignedWorkerID != "" && t.AssignedWorkerID != f.AssignedWorkerID {
		return false
	}
	if f.AssignedTeamID != "" && t.AssignedTeamID != f.AssignedTeamID {
		return false
	}
	if f.ParentID != "" && t.ParentID != f.ParentID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Unassigned && t.IsAssigned() {
		return false
	}
	return true
}

// Match reports whether w satisfies the filter.
func (f WorkerFilter) Match(w *models.Worker) bool {
	if f.TeamID != "" && w.TeamID != f.TeamID {
		return false
	}
	if f.Lifecycle != "" && w.Lifecycle != f.Lifecycle {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if w.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Match reports whether d satisfies the filter.
func (f DocumentFilter) Match(d *models.Document) bool {
	if f.TaskID != "" && d.TaskID != f.TaskID {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if len(f.AnyTags) == 0 {
		return true
	}
	for _, want := range f.AnyTags {
		for _, have := range d.Tags {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

func containsStatus(list []models.TaskStatus, s models.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
