// Package classify turns raw agent event identifiers into human-readable timeline text.
package classify

import (
	"strings"

	"github.com/jonathan/job-agent/internal/types"
)

// Fixed phrases. Backfill correlates later result messages with rendered entries
// by matching these, so they must stay in sync with the catalog below.
const (
	PhraseJobLinked          = "Stellenanzeige verknüpft"
	PhraseJobImported        = "Stellenanzeige importiert"
	PhraseResumeCreated      = "Lebenslauf erstellt"
	PhraseCoverLetterCreated = "Anschreiben erstellt"
	PhraseCompleted          = "Bewerbung abgeschlossen"
	PhraseStarting           = "Agent wird gestartet…"
	PhraseStarted            = "Agent gestartet"
	PhraseUnknownStep        = "Unbekannter Schritt"
)

// Error entry texts
const (
	PhraseAuthRequired   = "Anmeldung erforderlich. Bitte melde dich erneut an."
	PhraseInvalidInput   = "Die Angaben zur Bewerbung sind unvollständig oder ungültig."
	PhraseStartFailed    = "Der Agent konnte nicht gestartet werden."
	PhraseConnectionLost = "Die Verbindung zum Agenten wurde unterbrochen."
)

// Classification is the rendered form of one event
type Classification struct {
	Description string
	Status      types.EntryStatus
	StepCount   int
	StepDetails []string
}

type catalogEntry struct {
	description string
	steps       []string
}

var catalog = map[string]catalogEntry{
	"application_started": {description: "Bewerbung gestartet"},
	"job_linked":          {description: PhraseJobLinked},
	"job_imported":        {description: PhraseJobImported},
	"job_analyzed": {
		description: "Stellenanzeige analysiert",
		steps:       []string{"Anforderungen extrahiert", "Schlüsselwörter ermittelt"},
	},
	"resume_created": {
		description: PhraseResumeCreated,
		steps:       []string{"Erfahrungen ausgewählt", "Formulierungen angepasst", "PDF erzeugt"},
	},
	"cover_letter_created": {
		description: PhraseCoverLetterCreated,
		steps:       []string{"Unternehmen recherchiert", "Text verfasst", "PDF erzeugt"},
	},
	"portal_login":      {description: "Beim Jobportal angemeldet"},
	"portal_registered": {description: "Beim Jobportal registriert"},
	"form_opened":       {description: "Bewerbungsformular geöffnet"},
	"form_filled": {
		description: "Bewerbungsformular ausgefüllt",
		steps:       []string{"Persönliche Daten", "Berufserfahrung", "Ausbildung", "Zusatzfragen"},
	},
	"documents_uploaded": {
		description: "Dokumente hochgeladen",
		steps:       []string{"Lebenslauf", "Anschreiben"},
	},
	"application_submitted": {description: "Bewerbung abgeschickt"},
	"confirmation_received": {description: "Eingangsbestätigung erhalten"},
}

// Classify maps an event type and status onto its description and step breakdown.
// It is total: unknown types render as the identifier with separators turned into spaces.
func Classify(eventType, eventStatus string) Classification {
	c := Classification{Status: StatusFor(eventStatus)}

	if entry, ok := catalog[eventType]; ok {
		c.Description = entry.description
		if len(entry.steps) > 0 {
			c.StepCount = len(entry.steps)
			c.StepDetails = append([]string(nil), entry.steps...)
		}
		return c
	}

	c.Description = Humanize(eventType)
	return c
}

// StatusFor maps a raw event status onto an entry status
func StatusFor(eventStatus string) types.EntryStatus {
	if eventStatus == types.EventDone {
		return types.StatusSuccess
	}
	return types.StatusPending
}

// Humanize renders a raw identifier readable: "foo_bar" becomes "foo bar".
func Humanize(eventType string) string {
	s := strings.NewReplacer("_", " ", "-", " ").Replace(eventType)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return PhraseUnknownStep
	}
	return s
}

// Known reports whether the catalog has an entry for the event type
func Known(eventType string) bool {
	_, ok := catalog[eventType]
	return ok
}
