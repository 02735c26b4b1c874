package parent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// DuplicateGroup is a set of records that probably describe the same family.
// Primary is the record with the highest lead score.
type DuplicateGroup struct {
	Primary    Parent   `json:"primary"`
	Duplicates []Parent `json:"duplicates"`
	Reason     string   `json:"reason"`
}

// IDs returns the duplicate ids, ready for a Merge payload
func (g DuplicateGroup) IDs() []int64 {
	ids := make([]int64, len(g.Duplicates))
	for i, d := range g.Duplicates {
		ids[i] = d.ID
	}
	return ids
}

// LikelyDuplicates groups parents that share an email or phone number or
// whose names are within maxRatio normalised edit distance of each other.
func LikelyDuplicates(parents []Parent, maxRatio float64) []DuplicateGroup {
	n := len(parents)
	group := make([]int, n)
	reason := make([]string, n)
	for i := range group {
		group[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for group[i] != i {
			group[i] = group[group[i]]
			i = group[i]
		}
		return i
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			why := matchReason(parents[i], parents[j], maxRatio)
			if why == "" {
				continue
			}
			ri, rj := find(i), find(j)
			if ri != rj {
				group[rj] = ri
				if reason[ri] == "" {
					reason[ri] = reason[rj]
				}
				if reason[ri] == "" {
					reason[ri] = why
				}
			}
		}
	}

	members := map[int][]Parent{}
	var roots []int
	for i := range parents {
		r := find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], parents[i])
	}

	var out []DuplicateGroup
	for _, r := range roots {
		m := members[r]
		if len(m) < 2 {
			continue
		}
		sort.SliceStable(m, func(a, b int) bool { return m[a].LeadScore > m[b].LeadScore })
		out = append(out, DuplicateGroup{Primary: m[0], Duplicates: m[1:], Reason: reason[r]})
	}
	return out
}

func matchReason(a, b Parent, maxRatio float64) string {
	if a.Email != "" && strings.EqualFold(a.Email, b.Email) {
		return "same email"
	}
	if pa := digits(a.Phone); len(pa) >= 7 && pa == digits(b.Phone) {
		return "same phone"
	}
	na, nb := normalizeName(a.Name), normalizeName(b.Name)
	if na == "" || nb == "" {
		return ""
	}
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	if float64(levenshtein.ComputeDistance(na, nb))/float64(longest) <= maxRatio {
		return "similar name"
	}
	return ""
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
