package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jordanhubbard/counsel/internal/models"
)

// Fingerprint produces a normalized, order-independent summary of a task.
// Near-duplicate tasks deliberately collide: the domain is lowercased,
// technologies and pattern tags are lowercased and sorted, and complexity
// is bucketed to the nearest even integer.
func Fingerprint(task *models.Task, complexity float64) string {
	domain := strings.ToLower(task.Domain)
	if domain == "" {
		domain = "general"
	}

	techs := normalizeSorted(task.Technologies)
	tags := normalizeSorted(task.PatternTags)
	bucket := int(math.Round(complexity/2)) * 2

	var sb strings.Builder
	sb.WriteString(domain)
	sb.WriteString("|")
	sb.WriteString(strings.Join(techs, ","))
	sb.WriteString("|")
	sb.WriteString(strconv.Itoa(bucket))
	sb.WriteString("|")
	sb.WriteString(strings.Join(tags, ","))
	return sb.String()
}

// Key derives the cache key from a specialist and a task fingerprint.
func Key(specialistID, fingerprint string) string {
	hasher := sha256.New()
	hasher.Write([]byte(specialistID))
	hasher.Write([]byte(":"))
	hasher.Write([]byte(fingerprint))
	return hex.EncodeToString(hasher.Sum(nil))
}

func normalizeSorted(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
