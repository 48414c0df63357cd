// Package moderation filters outbound chat messages for off-platform
// contact attempts. Buyers and sellers taking a deal off the platform is
// the main fraud vector, so phone numbers, links, and messenger handles
// are rejected before a message is stored.
package moderation

import "regexp"

// Result is the outcome of evaluating a message body.
type Result struct {
	Blocked bool
	Reason  string
}

type rule struct {
	re     *regexp.Regexp
	reason string
}

// Rules are checked in order; the first match wins and its reason is
// returned to the sender verbatim.
var rules = []rule{
	{
		re:     regexp.MustCompile(`(?i)whatsapp`),
		reason: "WhatsApp-Links oder -Erwähnungen sind nicht erlaubt.",
	},
	{
		re:     regexp.MustCompile(`(?i)https?://[^\s]+`),
		reason: "Externe Links sind im Chat nicht erlaubt.",
	},
	{
		// German/international phone numbers: +49..., 0049..., 015x, 030...
		re:     regexp.MustCompile(`\+?\d[\d\s\-/()]{7,}\d`),
		reason: "Telefonnummern dürfen nicht im Chat geteilt werden.",
	},
	{
		// Spelled-out digits ("null eins...", "zero one...") used to
		// smuggle a phone number past the digit pattern.
		re:     regexp.MustCompile(`(?i)\b(zero|null|eins?|two|zwei|drei|four|vier|five|fünf|six|sechs|seven|sieben|eight|acht|nine|neun)\b.{0,5}\b(zero|null|eins?|two|zwei|drei|vier|fünf|sechs|sieben|acht|neun)\b`),
		reason: "Verschleierte Telefonnummern sind nicht erlaubt.",
	},
	{
		// Messenger handles: "@name telegram" and friends.
		re:     regexp.MustCompile(`(?i)@\w{3,}\s*(telegram|signal|wickr|threema)`),
		reason: "Weiterleitungen zu anderen Plattformen sind nicht erlaubt.",
	},
}

// Evaluate checks a message body against the filter rules.
func Evaluate(body string) Result {
	for _, r := range rules {
		if r.re.MatchString(body) {
			return Result{Blocked: true, Reason: r.reason}
		}
	}
	return Result{}
}
