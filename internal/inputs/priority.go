package inputs

import (
	"strconv"
	"strings"
)

// Keyword tiers for content-derived priority.
var (
	criticalKeywords = []string{"urgent", "asap", "emergency", "critical", "immediately"}
	highKeywords     = []string{"important", "deadline", "priority", "time-sensitive"}
)

// DetectPriority derives a 1–5 priority from explicit headers and content
// keywords. Header values win ties only when higher: the result is the max
// of the header-derived and content-derived priorities, clamped to [1, 5].
func DetectPriority(headers map[string]string, content string) int {
	headerPriority := priorityFromHeaders(headers)
	contentPriority := priorityFromContent(content)

	p := headerPriority
	if contentPriority > p {
		p = contentPriority
	}
	return clampPriority(p)
}

func priorityFromHeaders(headers map[string]string) int {
	for key, value := range headers {
		switch strings.ToLower(key) {
		case "x-priority":
			// Email convention: 1 is highest, 5 is lowest. Take the leading
			// digit ("1 (Highest)" is a common form) and invert.
			digit := strings.TrimSpace(value)
			if len(digit) > 0 {
				if n, err := strconv.Atoi(digit[:1]); err == nil && n >= 1 && n <= 5 {
					return 6 - n
				}
			}
		case "importance", "x-msmail-priority":
			switch strings.ToLower(strings.TrimSpace(value)) {
			case "high":
				return 4
			case "low":
				return 1
			}
		case "priority":
			switch strings.ToLower(strings.TrimSpace(value)) {
			case "urgent":
				return 5
			case "non-urgent":
				return 1
			}
		}
	}
	return 3
}

func priorityFromContent(content string) int {
	lowered := strings.ToLower(content)
	for _, kw := range criticalKeywords {
		if strings.Contains(lowered, kw) {
			return 5
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(lowered, kw) {
			return 4
		}
	}
	return 3
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}
