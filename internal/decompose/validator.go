package decompose

import (
	"fmt"

	"github.com/ShayCichocki/hollon/internal/graph"
	"github.com/ShayCichocki/hollon/pkg/models"
)

// ValidationResult contains the results of validating proposed work items.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidateItems checks a proposed breakdown before any task is created.
// Errors make the plan unusable; warnings flag plans that will schedule poorly.
func ValidateItems(items []models.WorkItem, maxItems int) ValidationResult {
	result := ValidationResult{Valid: true}

	if len(items) == 0 {
		result.fail("no work items")
		return result
	}
	if maxItems > 0 && len(items) > maxItems {
		result.fail("%d work items exceeds the limit of %d", len(items), maxItems)
	}

	titles := make(map[string]int, len(items))
	for i, it := range items {
		key := normalizeTitle(it.Title)
		if key == "" {
			result.fail("work item %d: missing title", i)
			continue
		}
		if j, dup := titles[key]; dup {
			result.fail("work items %d and %d share the title %q", j, i, it.Title)
			continue
		}
		titles[key] = i

		if it.Description == "" {
			result.warn("%q: missing description", it.Title)
		}
		if len(it.AffectedFiles) == 0 {
			result.warn("%q: no affected files listed (cannot be scheduled in parallel safely)", it.Title)
		}
		if len(it.Title) > 100 {
			result.warn("%q: title is %d characters, consider shortening", it.Title[:50]+"...", len(it.Title))
		}
	}

	validateReferences(items, titles, &result)
	checkAntiPatterns(items, &result)
	return result
}

// validateReferences rejects self references and cycles and warns about
// titles that match no sibling.
func validateReferences(items []models.WorkItem, titles map[string]int, result *ValidationResult) {
	nodes := make([]*models.Task, len(items))
	for i := range items {
		nodes[i] = &models.Task{ID: fmt.Sprintf("item-%d", i)}
	}
	g := graph.New()
	if err := g.Build(nodes); err != nil {
		result.fail("build dependency graph: %v", err)
		return
	}

	for i, it := range items {
		for _, dep := range it.DependsOn {
			j, ok := titles[normalizeTitle(dep)]
			if !ok {
				result.warn("%q: depends on unknown work item %q", it.Title, dep)
				continue
			}
			if j == i {
				result.fail("%q: depends on itself", it.Title)
				continue
			}
			if err := g.AddDependency(nodes[i].ID, nodes[j].ID); err != nil {
				result.fail("%q -> %q: %v", it.Title, dep, err)
			}
		}
	}
}

func checkAntiPatterns(items []models.WorkItem, result *ValidationResult) {
	if len(items) > 3 {
		independent := 0
		for _, it := range items {
			if len(it.DependsOn) == 0 {
				independent++
			}
		}
		if independent <= 1 {
			result.warn("work items form a dependency chain with minimal parallelism")
		}
	}

	overlaps := 0
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if sharesFile(items[i].AffectedFiles, items[j].AffectedFiles) {
				overlaps++
			}
		}
	}
	if overlaps > len(items)/2 {
		result.warn("high affected-file overlap (%d pairs) will serialize execution", overlaps)
	}
}

func sharesFile(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		if set[f] {
			return true
		}
	}
	return false
}
