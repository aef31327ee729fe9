// Package translate formats user visible text for the host locale.
package translate

import (
	"log"
	"sync"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer     *message.Printer
	printerOnce sync.Once
)

// Locales returns the locales requested by the environment, falling
// back to en-US.
func Locales() (locales []string) {
	locales, err := locale.GetLocales()
	if err != nil {
		log.Printf("atic: locale: %v", err)
	}

	if len(locales) == 0 {
		locales = []string{"en-US"}
	}

	return
}

// Printer returns the shared message printer.
func Printer() *message.Printer {
	printerOnce.Do(func() {
		printer = message.NewPrinter(message.MatchLanguage(Locales()...))
	})
	return printer
}

// SetLanguage replaces the shared printer. Used by tests and the CLI to pin
// number formatting.
func SetLanguage(tag language.Tag) {
	printerOnce.Do(func() {})
	printer = message.NewPrinter(tag)
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	return Printer().Sprintf(key, args...)
}
