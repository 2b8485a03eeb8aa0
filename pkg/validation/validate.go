package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"chatsync/pkg/models"
)

// Rules bound what the engine accepts at the write boundary. Set once at
// startup; zero values mean "use defaults".
type Rules struct {
	MaxContentLen  int
	MaxMetadataLen int
	MaxEmojiLen    int
	MaxNameLen     int
}

var rules = Rules{
	MaxContentLen:  8 * 1024,
	MaxMetadataLen: 32,
	MaxEmojiLen:    32,
	MaxNameLen:     128,
}

// SetRules replaces the active rule set; zero fields keep their defaults.
func SetRules(r Rules) {
	if r.MaxContentLen > 0 {
		rules.MaxContentLen = r.MaxContentLen
	}
	if r.MaxMetadataLen > 0 {
		rules.MaxMetadataLen = r.MaxMetadataLen
	}
	if r.MaxEmojiLen > 0 {
		rules.MaxEmojiLen = r.MaxEmojiLen
	}
	if r.MaxNameLen > 0 {
		rules.MaxNameLen = r.MaxNameLen
	}
}

// ValidateContent checks outbound message content at append time.
// Tombstones are the only messages allowed a nil content, and they are
// produced internally, never accepted from callers.
func ValidateContent(content string, metadata map[string]any) error {
	var errs []string
	if strings.TrimSpace(content) == "" {
		errs = append(errs, "content is required")
	}
	if len(content) > rules.MaxContentLen {
		errs = append(errs, fmt.Sprintf("content too long: %d > %d", len(content), rules.MaxContentLen))
	}
	if !utf8.ValidString(content) {
		errs = append(errs, "content is not valid utf-8")
	}
	if len(metadata) > rules.MaxMetadataLen {
		errs = append(errs, fmt.Sprintf("too many metadata keys: %d > %d", len(metadata), rules.MaxMetadataLen))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateEmoji checks a reaction value.
func ValidateEmoji(emoji string) error {
	if emoji == "" {
		return errors.New("emoji is required")
	}
	if len(emoji) > rules.MaxEmojiLen {
		return fmt.Errorf("emoji too long: %d > %d", len(emoji), rules.MaxEmojiLen)
	}
	if !utf8.ValidString(emoji) {
		return errors.New("emoji is not valid utf-8")
	}
	return nil
}

// ValidateGroup checks group creation input.
func ValidateGroup(name, typ string) error {
	var errs []string
	if strings.TrimSpace(name) == "" {
		errs = append(errs, "name is required")
	}
	if len(name) > rules.MaxNameLen {
		errs = append(errs, fmt.Sprintf("name too long: %d > %d", len(name), rules.MaxNameLen))
	}
	if !models.ValidGroupType(typ) {
		errs = append(errs, fmt.Sprintf("invalid group type %q", typ))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateUser checks signup input. Client-supplied ids feed the colon
// separated key space, so a ':' inside one would alias another user's
// prefixes.
func ValidateUser(u models.User) error {
	var errs []string
	if strings.ContainsRune(u.ID, ':') || len(u.ID) > rules.MaxNameLen {
		errs = append(errs, fmt.Sprintf("invalid user id %q", u.ID))
	}
	if strings.TrimSpace(u.Username) == "" {
		errs = append(errs, "username is required")
	}
	if len(u.Username) > rules.MaxNameLen {
		errs = append(errs, "username too long")
	}
	if len(u.DisplayName) > rules.MaxNameLen {
		errs = append(errs, "display_name too long")
	}
	if u.Status != "" && !models.ValidStatus(u.Status) {
		errs = append(errs, fmt.Sprintf("invalid status %q", u.Status))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
