package graph

import (
	"sort"

	"github.com/ShayCichocki/hollon/pkg/models"
)

// StatusLookup returns the status of a task by ID and whether it is known.
type StatusLookup func(id string) (models.TaskStatus, bool)

// ComputeReadySet returns the candidates whose dependencies are all completed.
// Dependencies unknown to lookup count as unmet.
func ComputeReadySet(candidates []*models.Task, lookup StatusLookup) []*models.Task {
	var ready []*models.Task
	for _, t := range candidates {
		ok := true
		for _, dep := range t.DependsOn {
			status, known := lookup(dep)
			if !known || status != models.TaskStatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}

// LookupFromTasks builds a StatusLookup over a task slice.
func LookupFromTasks(tasks []*models.Task) StatusLookup {
	m := make(map[string]models.TaskStatus, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t.Status
	}
	return func(id string) (models.TaskStatus, bool) {
		s, ok := m[id]
		return s, ok
	}
}

// GroupForParallelExecution partitions tasks into batches that can run at the
// same time without two tasks writing the same file. Tasks are ordered by
// priority (most urgent first, stable on input order) and each is placed in
// the first group whose members touch none of its affected files.
func GroupForParallelExecution(tasks []*models.Task) [][]*models.Task {
	ordered := make([]*models.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() < ordered[j].Priority.Rank()
	})

	type group struct {
		tasks []*models.Task
		files map[string]bool
	}
	var groups []*group

	for _, t := range ordered {
		placed := false
		for _, g := range groups {
			if !overlaps(g.files, t.AffectedFiles) {
				g.tasks = append(g.tasks, t)
				for _, f := range t.AffectedFiles {
					g.files[f] = true
				}
				placed = true
				break
			}
		}
		if !placed {
			g := &group{files: make(map[string]bool)}
			g.tasks = append(g.tasks, t)
			for _, f := range t.AffectedFiles {
				g.files[f] = true
			}
			groups = append(groups, g)
		}
	}

	out := make([][]*models.Task, len(groups))
	for i, g := range groups {
		out[i] = g.tasks
	}
	return out
}

func overlaps(files map[string]bool, candidate []string) bool {
	for _, f := range candidate {
		if files[f] {
			return true
		}
	}
	return false
}

// FileConflict names a file touched by more than one task.
type FileConflict struct {
	File    string   `json:"file"`
	TaskIDs []string `json:"task_ids"`
}

// DetectFileConflicts returns every file shared by two or more tasks,
// sorted by file path with task IDs sorted.
func DetectFileConflicts(tasks []*models.Task) []FileConflict {
	byFile := make(map[string][]string)
	for _, t := range tasks {
		seen := make(map[string]bool, len(t.AffectedFiles))
		for _, f := range t.AffectedFiles {
			if seen[f] {
				continue
			}
			seen[f] = true
			byFile[f] = append(byFile[f], t.ID)
		}
	}

	var conflicts []FileConflict
	for file, ids := range byFile {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		conflicts = append(conflicts, FileConflict{File: file, TaskIDs: ids})
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].File < conflicts[j].File })
	return conflicts
}
