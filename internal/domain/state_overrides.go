package domain

import (
	"fmt"

	"golang.org/x/text/language"
)

// StateOverrides describes local device state the server should evaluate
// against instead of what it last recorded for the channel.
type StateOverrides struct {
	AppVersion        string `json:"app_version,omitempty"`
	SDKVersion        string `json:"sdk_version,omitempty"`
	NotificationOptIn bool   `json:"notification_opt_in"`
	LocaleLanguage    string `json:"locale_language,omitempty"`
	LocaleCountry     string `json:"locale_country,omitempty"`
}

// WithLocale returns a copy with the language and country taken from a BCP 47 tag.
// The country is only set when the tag names a region explicitly or it can be
// inferred with high confidence.
func (s StateOverrides) WithLocale(tag string) (StateOverrides, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return s, fmt.Errorf("%w %q: %w", ErrInvalidLocale, tag, err)
	}

	base, _ := t.Base()
	s.LocaleLanguage = base.String()
	s.LocaleCountry = ""
	if region, conf := t.Region(); conf >= language.High {
		s.LocaleCountry = region.String()
	}
	return s, nil
}

// StaticStateOverrides returns a provider that always reports s.
func StaticStateOverrides(s StateOverrides) func() StateOverrides {
	return func() StateOverrides { return s }
}
