package uncertainty

import (
	"regexp"
	"strings"
)

var (
	hedgeMarkers = []string{
		"tbd", "tbc", "unclear", "todo", "unknown", "maybe", "not sure", "to be determined", "figure out",
	}
	technicalMarkers = []string{
		"research", "prototype", "feasibility", "investigate", "explore", "spike", "proof of concept",
		"poc", "experimental", "evaluate", "unproven", "new technology",
	}
	dependencyMarkers = []string{
		"external", "third-party", "third party", "vendor", "other team", "another team",
		"upstream", "partner", "blocked by", "waiting on", "depends on",
	}
	breadthMarkers = []string{
		"various", "multiple", "refactor", "overhaul", "everything", "entire", "comprehensive",
		"across the", "etc",
	}
	vagueTitles = []string{
		"fix", "fix bugs", "fix issues", "update", "improve", "improvements", "cleanup", "clean up",
		"misc", "miscellaneous", "changes", "stuff", "work", "tweaks",
	}
)

// markerSet matches whole words or phrases, case-insensitively.
type markerSet struct {
	re *regexp.Regexp
}

func newMarkerSet(words []string) markerSet {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return markerSet{re: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)}
}

// find returns the distinct markers present in text, lowercased, in order of appearance.
func (m markerSet) find(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, hit := range m.re.FindAllString(text, -1) {
		hit = strings.ToLower(hit)
		if !seen[hit] {
			seen[hit] = true
			out = append(out, hit)
		}
	}
	return out
}

var (
	hedges     = newMarkerSet(hedgeMarkers)
	technical  = newMarkerSet(technicalMarkers)
	dependency = newMarkerSet(dependencyMarkers)
	breadth    = newMarkerSet(breadthMarkers)
)

func isVagueTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	t = strings.TrimRight(t, ".!")
	if len(strings.Fields(t)) < 2 {
		return true
	}
	for _, v := range vagueTitles {
		if t == v {
			return true
		}
	}
	return false
}
