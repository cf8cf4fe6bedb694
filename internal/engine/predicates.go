package engine

import (
	"strings"

	"github.com/stackDawg/skylark2/internal/domain"
)

// DatesOverlap is the closed-interval test: ranges touching on a single day overlap.
func DatesOverlap(startA, endA, startB, endB domain.Date) bool {
	return startA.Compare(endB) <= 0 && startB.Compare(endA) <= 0
}

func missionsOverlap(a, b domain.Mission) bool {
	return DatesOverlap(a.Start, a.End, b.Start, b.End)
}

// CoversAll reports whether every required token appears in have, compared
// case-insensitively. An empty requirement always passes.
func CoversAll(have, required []string) bool {
	return len(Missing(have, required)) == 0
}

// Missing returns the required tokens absent from have, in requirement order.
func Missing(have, required []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[fold(h)] = struct{}{}
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r) == "" {
			continue
		}
		if _, ok := set[fold(r)]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// CoversAllSkills reports whether the pilot has every required skill.
func CoversAllSkills(p domain.Pilot, required []string) bool {
	return CoversAll(p.Skills, required)
}

// CoversAllCertifications reports whether the pilot holds every required certification.
func CoversAllCertifications(p domain.Pilot, required []string) bool {
	return CoversAll(p.Certifications, required)
}

// SameLocation compares locations case-insensitively.
func SameLocation(a, b string) bool {
	return fold(a) == fold(b)
}

// anyTokenContains reports whether some token contains one of the needles.
func anyTokenContains(tokens []string, needles ...string) bool {
	for _, t := range tokens {
		t = fold(t)
		for _, n := range needles {
			if strings.Contains(t, n) {
				return true
			}
		}
	}
	return false
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func pilotUnavailable(s domain.PilotStatus) bool {
	return s == domain.PilotOnLeave || s == domain.PilotUnavailable
}
