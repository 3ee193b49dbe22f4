package session

import (
	"fmt"
	"regexp"
	"strings"

	"taxassist/backend/pkg/models"
)

// How many trailing messages the scanner inspects.
const scanWindow = 4

var (
	formPattern    = regexp.MustCompile(`(?i)(?:FORM\s+)?(1042-S|1098|W-?7|Schedule\s+[A-Z]\b|1040NR|8843)`)
	itinPattern    = regexp.MustCompile(`(?i)ITIN|Individual Taxpayer Identification Number`)
	taxYearPattern = regexp.MustCompile(`\b20\d{2}\b`)
)

// RecentContext scans the last few conversation turns for tax form names,
// ITIN mentions and tax years, and renders a short context line for the
// answering agent. Returns "" when nothing relevant was discussed.
func RecentContext(messages []models.Message) string {
	start := len(messages) - scanWindow
	if start < 0 {
		start = 0
	}

	var forms, topics []string
	seenForms := map[string]bool{}
	seenTopics := map[string]bool{}
	for _, msg := range messages[start:] {
		for _, m := range formPattern.FindAllStringSubmatch(msg.Content, -1) {
			form := strings.ToUpper(strings.TrimSpace(m[1]))
			if !seenForms[form] {
				seenForms[form] = true
				forms = append(forms, form)
			}
		}
		if itinPattern.MatchString(msg.Content) && !seenTopics["ITIN"] {
			seenTopics["ITIN"] = true
			topics = append(topics, "ITIN")
		}
		if years := taxYearPattern.FindAllString(msg.Content, -1); len(years) > 0 {
			topic := "Tax Year " + years[len(years)-1]
			if !seenTopics[topic] {
				seenTopics[topic] = true
				topics = append(topics, topic)
			}
		}
	}

	var parts []string
	if len(forms) > 0 {
		parts = append(parts, "Recently discussed forms: "+strings.Join(forms, ", "))
	}
	if len(topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(topics, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("RECENT CONTEXT: %s. Use this context when the client refers to 'that form' or 'the document we discussed'.",
		strings.Join(parts, ". "))
}
