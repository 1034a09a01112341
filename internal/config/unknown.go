package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you
// mean?" suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid dotted section.key paths in the config file.
var knownKeys = map[string]bool{
	"oauth.client_id": true, "oauth.client_secret": true, "oauth.redirect_uri": true,
	"oauth.client_type": true, "oauth.javascript_origin": true,
	"platform.events_url": true, "platform.files_url": true, "platform.token": true,
	"store.path":         true,
	"server.listen_addr": true, "server.shutdown_timeout": true,
	"logging.log_level": true, "logging.log_format": true,
	"network.request_timeout": true, "network.user_agent": true,
}

// knownKeysList is the sorted slice form of knownKeys for Levenshtein
// matching. Sorted for deterministic suggestions when two candidates
// have the same edit distance.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		keyStr := key.String()

		suggestion := closestMatch(keyStr, knownKeysList)
		if suggestion != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q — did you mean %q?", keyStr, suggestion))
		} else {
			errs = append(errs, fmt.Errorf("unknown config key %q", keyStr))
		}
	}

	return errors.Join(errs...)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
// Only the leaf segment is compared when the section already matches.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(leafFor(unknown, k), strings.SplitN(k, ".", 2)[1])
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// leafFor returns the part of unknown to compare against candidate's
// leaf: its own leaf when the sections match, otherwise the full key so
// cross-section typos stay expensive.
func leafFor(unknown, candidate string) string {
	unknownParts := strings.SplitN(unknown, ".", 2)
	candidateParts := strings.SplitN(candidate, ".", 2)

	if len(unknownParts) == 2 && unknownParts[0] == candidateParts[0] {
		return unknownParts[1]
	}

	return unknown
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
