// Package secrets redacts credentials and personal identifiers from text
// before it leaves the process in a generator prompt.
//
// Credentials are found by the gitleaks default rule set. Personal
// identifiers (Russian phone numbers, INN, SNILS, passports, bank accounts)
// come from local rules: each is a regular expression, optionally gated by
// keywords that must appear somewhere in the text. Matches are merged and
// replaced by a placeholder; findings keep rule ids and offsets but never
// the matched value.
package secrets
