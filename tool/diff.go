package tool

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	pullRequestURL = regexp.MustCompile(`https://github\.com/([^/]+)/([^/]+)/pull/(\d+)(?:/.*)?$`)
	hunkHeader     = regexp.MustCompile(`^@@ -(\d+),?\d* \+(\d+),?.*@@`)
)

// PullRequestRef identifies a pull request.
type PullRequestRef struct {
	Owner  string
	Repo   string
	Number int
}

// ParsePullRequestURL extracts owner, repository and number from a GitHub
// pull request URL.
func ParsePullRequestURL(url string) (PullRequestRef, error) {
	m := pullRequestURL.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return PullRequestRef{}, fmt.Errorf("not a GitHub pull request URL: %q", url)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return PullRequestRef{}, fmt.Errorf("invalid pull request number %q: %w", m[3], err)
	}
	return PullRequestRef{Owner: m[1], Repo: m[2], Number: n}, nil
}

// SliceDiff keeps file headers, hunk headers, every changed line and up to
// context unchanged lines after a run of changes.
func SliceDiff(diff string, context int) string {
	var out []string
	keep, ctx := false, 0
	for _, ln := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(ln, "+++ b/"):
			out = append(out, ln)
			keep = false
		case strings.HasPrefix(ln, "@@"):
			out = append(out, ln)
			keep, ctx = true, context
		case keep && (strings.HasPrefix(ln, "+") || strings.HasPrefix(ln, "-")):
			out = append(out, ln)
			ctx = context
		case keep && ctx > 0:
			out = append(out, ln)
			ctx--
		}
	}
	return strings.Join(out, "\n")
}

// AnnotateDiff prefixes every changed line with "path:line:" so a reviewer
// can reference exact locations.
func AnnotateDiff(diff string) string {
	var out []string
	file := ""
	oldLn, newLn := 0, 0
	for _, ln := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(ln, "+++ "):
			file = strings.TrimPrefix(strings.TrimPrefix(ln, "+++ "), "b/")
			out = append(out, ln)
		case strings.HasPrefix(ln, "@@"):
			if m := hunkHeader.FindStringSubmatch(ln); m != nil {
				oldLn, _ = strconv.Atoi(m[1])
				newLn, _ = strconv.Atoi(m[2])
			}
			out = append(out, ln)
		case strings.HasPrefix(ln, "+"):
			out = append(out, fmt.Sprintf("%s:%d:%s", file, newLn, ln))
			newLn++
		case strings.HasPrefix(ln, "-"):
			out = append(out, fmt.Sprintf("%s:%d:%s", file, oldLn, ln))
			oldLn++
		default:
			out = append(out, ln)
			oldLn++
			newLn++
		}
	}
	return strings.Join(out, "\n")
}
