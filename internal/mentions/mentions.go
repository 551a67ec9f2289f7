// Package mentions translates between transport mention markup,
// display aliases, and the canonical user reference form used when
// talking to the knowledge store.
package mentions

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gendev/gen-agent/internal/profiles"
)

var (
	mentionPat = regexp.MustCompile(`<@!?(\d+)>`)
	userRefPat = regexp.MustCompile(`User \(user_id: (\d+)\)`)
)

// Directory is the alias lookup surface the translators need. The
// profiles store satisfies it.
type Directory interface {
	Alias(ctx context.Context, userID string) string
	KnownNames(ctx context.Context) ([]profiles.NameRef, error)
}

// ResolveMentions rewrites <@id> and <@!id> markup into display
// aliases. The bot's own id maps to botName. Unknown ids are left
// untouched so the oracle still sees that someone was addressed.
func ResolveMentions(ctx context.Context, text string, dir Directory, botUserID, botName string) string {
	if dir == nil {
		return text
	}
	return mentionPat.ReplaceAllStringFunc(text, func(m string) string {
		id := mentionPat.FindStringSubmatch(m)[1]
		if botUserID != "" && id == botUserID {
			return botName
		}
		if alias := dir.Alias(ctx, id); alias != "" {
			return alias
		}
		return m
	})
}

// AliasesToRefs replaces every known display name in text with the
// canonical "User (user_id: N)" form. Matching is case-insensitive on
// word boundaries, and names must be supplied longest first: "Gen the
// Great" has to win before a rule for "Gen" can corrupt it.
func AliasesToRefs(text string, names []profiles.NameRef) string {
	for _, n := range names {
		if n.Name == "" || n.UserID == "" {
			continue
		}
		pat, err := namePattern(n.Name)
		if err != nil {
			continue
		}
		text = pat.ReplaceAllString(text, fmt.Sprintf("User (user_id: %s)", n.UserID))
	}
	return text
}

// RefsToAliases reverses AliasesToRefs. References to users the
// directory does not know stay in reference form.
func RefsToAliases(ctx context.Context, text string, dir Directory) string {
	if dir == nil {
		return text
	}
	return userRefPat.ReplaceAllStringFunc(text, func(m string) string {
		id := userRefPat.FindStringSubmatch(m)[1]
		if alias := dir.Alias(ctx, id); alias != "" {
			return alias
		}
		return m
	})
}

// AliasesToMentions rewrites known display names into <@id> markup so
// outbound replies ping the people they name. Names must be supplied
// longest first, same as AliasesToRefs.
func AliasesToMentions(text string, names []profiles.NameRef) string {
	for _, n := range names {
		if n.Name == "" || n.UserID == "" {
			continue
		}
		pat, err := namePattern(n.Name)
		if err != nil {
			continue
		}
		text = pat.ReplaceAllString(text, "<@"+n.UserID+">")
	}
	return text
}

func namePattern(name string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
}
