package ussd

import (
	"embed"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed locales/*.toml
var localeFS embed.FS

var bundle = mustLoadBundle()

func mustLoadBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		panic(fmt.Sprintf("ussd: read locales: %v", err))
	}
	for _, e := range entries {
		if _, err := b.LoadMessageFileFS(localeFS, "locales/"+e.Name()); err != nil {
			panic(fmt.Sprintf("ussd: load %s: %v", e.Name(), err))
		}
	}
	return b
}

// Copy renders menu text in one language, falling back to English.
type Copy struct {
	loc     *i18n.Localizer
	printer *message.Printer
}

func NewCopy(lang string) *Copy {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return &Copy{
		loc:     i18n.NewLocalizer(bundle, tag.String(), language.English.String()),
		printer: message.NewPrinter(tag),
	}
}

// T returns the message for id; an unknown id comes back verbatim.
func (c *Copy) T(id string, data map[string]any) string {
	msg, err := c.loc.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}

// Money formats minor units as "KES 15,000.00".
func (c *Copy) Money(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	if currency == "" {
		currency = "KES"
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, c.printer.Sprintf("%d", minor/100), minor%100)
}
