package reconcile

import (
	"sort"

	"evalview/internal/artifacts"
)

// Mapping is derived from one artifact scan and never persisted
type Mapping struct {
	// Slugs in sorted order
	Slugs []string
	// Keys per slug in first-seen order
	Keys map[string][]string
	// Payloads maps slug → key → first non-empty payload
	Payloads map[string]map[string]string
	// Display holds the single identity carried by a slug's records
	Display map[string]string
	// Ambiguous holds identity counts for slugs with more than one identity
	Ambiguous map[string]map[string]int
	// Keyless counts records per slug that carry no key
	Keyless map[string]int
	// NonObject counts array elements per slug that were not records
	NonObject map[string]int
	// Files per slug
	Files map[string][]string
}

// BuildMapping folds scanned artifacts into a slug mapping. Identities are
// merged across every file of a slug before ambiguity is decided.
func BuildMapping(arts []artifacts.Artifact) *Mapping {
	m := &Mapping{
		Keys:      make(map[string][]string),
		Payloads:  make(map[string]map[string]string),
		Display:   make(map[string]string),
		Ambiguous: make(map[string]map[string]int),
		Keyless:   make(map[string]int),
		NonObject: make(map[string]int),
		Files:     make(map[string][]string),
	}

	identities := make(map[string]map[string]int)
	seenKey := make(map[string]map[string]bool)

	for _, a := range arts {
		slug := a.Slug
		if _, ok := identities[slug]; !ok {
			identities[slug] = make(map[string]int)
			seenKey[slug] = make(map[string]bool)
			m.Payloads[slug] = make(map[string]string)
			m.Slugs = append(m.Slugs, slug)
		}
		m.Files[slug] = append(m.Files[slug], a.Path)
		m.NonObject[slug] += a.NonObject

		for id, n := range a.Identities {
			identities[slug][id] += n
		}

		for _, rec := range a.Records {
			if rec.Key == "" {
				m.Keyless[slug]++
				continue
			}
			if !seenKey[slug][rec.Key] {
				seenKey[slug][rec.Key] = true
				m.Keys[slug] = append(m.Keys[slug], rec.Key)
			}
			if rec.Payload != "" {
				if _, ok := m.Payloads[slug][rec.Key]; !ok {
					m.Payloads[slug][rec.Key] = rec.Payload
				}
			}
		}
	}

	sort.Strings(m.Slugs)
	for slug, ids := range identities {
		switch len(ids) {
		case 0:
		case 1:
			for id := range ids {
				m.Display[slug] = id
			}
		default:
			m.Ambiguous[slug] = ids
		}
	}
	return m
}

// IsAmbiguous reports whether slug carries competing identities
func (m *Mapping) IsAmbiguous(slug string) bool {
	_, ok := m.Ambiguous[slug]
	return ok
}
