package ingest

import "fmt"

const (
	maxTitleLength    = 500
	maxUsernameLength = 150
	visitorHashLength = 16
)

// ValidateViewEventPayload validates view event payload fields.
func ValidateViewEventPayload(payload ViewEventPayload) error {
	if payload.BlogID <= 0 {
		return fmt.Errorf("blog_id must be positive")
	}
	if payload.BlogTitle == "" {
		return fmt.Errorf("blog_title is required")
	}
	if len(payload.BlogTitle) > maxTitleLength {
		return fmt.Errorf("blog_title too long")
	}
	if payload.AuthorUsername == "" {
		return fmt.Errorf("author_username is required")
	}
	if len(payload.AuthorUsername) > maxUsernameLength {
		return fmt.Errorf("author_username too long")
	}
	if payload.CountryCode != "" && len(payload.CountryCode) != 2 {
		return fmt.Errorf("country_code must be 2 chars")
	}
	if payload.VisitorHash != "" && (len(payload.VisitorHash) != visitorHashLength || !isHex(payload.VisitorHash)) {
		return fmt.Errorf("visitor_hash must be %d hex chars", visitorHashLength)
	}
	if payload.ViewedAt <= 0 {
		return fmt.Errorf("viewed_at must be set")
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
