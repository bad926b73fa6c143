package content

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

// PageKey identifies one editable page. Buffers and history are scoped per key.
type PageKey struct {
	ContentType string `json:"contentType"`
	Slug        string `json:"slug"`
	Locale      string `json:"locale"`
}

var segmentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// String renders the key as "type/slug/locale".
func (k PageKey) String() string {
	return k.ContentType + "/" + k.Slug + "/" + k.Locale
}

// ParsePageKey parses the String form.
func ParsePageKey(s string) (PageKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return PageKey{}, errors.ValidationError("page key must be type/slug/locale").
			WithContext("key", s).Build()
	}
	k := PageKey{ContentType: parts[0], Slug: parts[1], Locale: parts[2]}
	return k, k.Validate()
}

// Validate checks path-safe type and slug segments and a well-formed BCP 47 locale.
func (k PageKey) Validate() error {
	if !segmentPattern.MatchString(k.ContentType) {
		return errors.ValidationError("invalid content type").WithContext("content_type", k.ContentType).Build()
	}
	if !segmentPattern.MatchString(k.Slug) {
		return errors.ValidationError("invalid slug").WithContext("slug", k.Slug).Build()
	}
	if _, err := language.Parse(k.Locale); err != nil || strings.ContainsAny(k.Locale, "/.") {
		return errors.ValidationError("invalid locale").WithContext("locale", k.Locale).Build()
	}
	return nil
}

// ValidateVariant checks an optional variant name.
func ValidateVariant(variant string) error {
	if variant == "" || segmentPattern.MatchString(variant) {
		return nil
	}
	return errors.ValidationError("invalid variant").WithContext("variant", variant).Build()
}
