package consolidate

import "strings"

// genericTitleWords are words that carry no descriptive weight on their
// own. A title made only of these loses to any substantive title, even a
// shorter one.
var genericTitleWords = map[string]bool{
	"breaking": true, "update": true, "updated": true, "news": true,
	"live": true, "alert": true, "report": true, "video": true,
	"watch": true, "developing": true, "latest": true,
	"the": true, "a": true, "an": true, "of": true, "in": true,
	"on": true, "at": true, "to": true, "and": true,
}

// pickTitle selects the more descriptive of two titles. Descriptive beats
// generic regardless of length; among equally descriptive titles the longer
// one wins, and the incumbent keeps ties.
func pickTitle(current, candidate string) string {
	if candidate == "" {
		return current
	}
	if current == "" {
		return candidate
	}

	curDesc := isDescriptive(current)
	candDesc := isDescriptive(candidate)
	if curDesc != candDesc {
		if candDesc {
			return candidate
		}
		return current
	}

	if len(candidate) > len(current) {
		return candidate
	}
	return current
}

// isDescriptive reports whether the title contains at least one
// non-generic word.
func isDescriptive(title string) bool {
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.Trim(w, ".,:;!?\"'()[]")
		if w != "" && !genericTitleWords[w] {
			return true
		}
	}
	return false
}
