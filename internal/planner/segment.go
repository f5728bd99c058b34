package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
)

var (
	// Bracketed groups are masked before splitting so annotation values may
	// contain commas, periods or conjunctions.
	bracketRe    = regexp.MustCompile(`\[[^\[\]]*\]`)
	placeholder  = regexp.MustCompile("\x00([0-9]+)\x00")
	sentenceRe   = regexp.MustCompile(`[.?!]+(?:\s+|$)`)
	conjunctRe   = regexp.MustCompile(`(?i)\s*(?:\band\b|\bthen\b|,)\s*`)
	annotationRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)=(?:"([^"]*)"|(\S+))`)
)

// Segment splits a goal into ordered task specs.
//
// The goal is split at sentence terminators (".", "?", "!" followed by
// whitespace or end of text), then at commas and the words "and"/"then".
// Segments are trimmed, empties dropped, and duplicates (case-insensitive)
// removed keeping the first. A bracketed annotation such as
// [path=out.txt content="hi"] becomes the segment's metadata. At most
// maxTasks specs are returned; maxTasks <= 0 means no limit.
//
// NUL bytes in the goal are dropped. Segment is pure: the same goal always
// yields the same specs.
func Segment(goal string, maxTasks int) []progress.TaskSpec {
	// NUL delimits masked groups, so it cannot be allowed through from the goal.
	goal = strings.ReplaceAll(goal, "\x00", "")
	goal = strings.Join(strings.Fields(goal), " ")
	if goal == "" {
		return nil
	}

	var groups []string
	masked := bracketRe.ReplaceAllStringFunc(goal, func(m string) string {
		groups = append(groups, m)
		return fmt.Sprintf("\x00%d\x00", len(groups)-1)
	})

	var specs []progress.TaskSpec
	seen := make(map[string]bool)

	for _, sentence := range sentenceRe.Split(masked, -1) {
		for _, piece := range conjunctRe.Split(sentence, -1) {
			spec, ok := buildSpec(piece, groups)
			if !ok {
				continue
			}
			key := strings.ToLower(spec.Description)
			if seen[key] {
				continue
			}
			seen[key] = true
			specs = append(specs, spec)
			if maxTasks > 0 && len(specs) == maxTasks {
				return specs
			}
		}
	}

	if len(specs) == 0 {
		// Nothing survived splitting (e.g. punctuation only): keep the goal whole.
		return []progress.TaskSpec{{Description: goal}}
	}
	return specs
}

// buildSpec restores masked groups in piece, turning key=value groups into
// metadata and leaving any other bracketed text in the description.
func buildSpec(piece string, groups []string) (progress.TaskSpec, bool) {
	var meta map[string]string

	desc := placeholder.ReplaceAllStringFunc(piece, func(m string) string {
		idx, err := strconv.Atoi(placeholder.FindStringSubmatch(m)[1])
		if err != nil || idx < 0 || idx >= len(groups) {
			return m
		}
		group := groups[idx]
		pairs := parseAnnotation(group[1 : len(group)-1])
		if pairs == nil {
			return group
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		for k, v := range pairs {
			meta[k] = v
		}
		return ""
	})

	desc = strings.Join(strings.Fields(desc), " ")
	desc = strings.TrimRight(desc, ".?!")
	if desc == "" {
		return progress.TaskSpec{}, false
	}
	return progress.TaskSpec{Description: desc, Metadata: meta}, true
}

// parseAnnotation returns the key=value pairs of body, or nil if body is not
// made up entirely of pairs.
func parseAnnotation(body string) map[string]string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	matches := annotationRe.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil
	}

	pairs := make(map[string]string, len(matches))
	rest := body
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		key := body[m[2]:m[3]]
		var value string
		if m[4] >= 0 {
			value = body[m[4]:m[5]]
		} else {
			value = body[m[6]:m[7]]
		}
		if _, dup := pairs[key]; !dup {
			pairs[key] = value
		}
		rest = rest[:m[0]] + rest[m[1]:]
	}

	if strings.TrimSpace(rest) != "" {
		return nil
	}
	return pairs
}
