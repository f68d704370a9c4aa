package fetchlib

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// mojibakeCharsets are tried in order. Latin-1 catches the C1 controls
// that Windows-1252 cannot encode ("Ã\u0089tat" for "État").
var mojibakeCharsets = []*charmap.Charmap{charmap.Windows1252, charmap.ISO8859_1}

// repairMojibake undoes one round of UTF-8 bytes being decoded as
// Windows-1252 or Latin-1 ("CafÃ©" becomes "Café"). Names that do not
// re-encode to valid UTF-8 are returned unchanged.
func repairMojibake(s string) string {
	if isASCII(s) {
		return s
	}
	for _, cm := range mojibakeCharsets {
		raw, err := cm.NewEncoder().String(s)
		if err == nil && raw != s && utf8.ValidString(raw) {
			return raw
		}
	}
	return s
}

// normalizeName repairs mojibake and applies Unicode NFC.
func normalizeName(s string) string {
	return norm.NFC.String(repairMojibake(s))
}

// foldName is normalizeName followed by Unicode case folding.
func foldName(s string) string {
	// a Caser keeps state; one per call
	return cases.Fold().String(normalizeName(s))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// matchEntry picks the listed file that best matches name, trying in order:
// exact, normalized, case-folded, suffix of a listed path, substring.
func matchEntry(entries []Entry, name string) (Entry, bool) {
	files := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Kind != EntryFolder {
			files = append(files, e)
		}
	}
	normName := normalizeName(name)
	foldedName := foldName(name)

	matchers := []func(e Entry) bool{
		func(e Entry) bool { return e.Name == name },
		func(e Entry) bool { return normalizeName(e.Name) == normName },
		func(e Entry) bool { return foldName(e.Name) == foldedName },
		func(e Entry) bool {
			return strings.HasSuffix(e.Name, "/"+name) ||
				strings.HasSuffix(foldName(e.Name), "/"+foldedName)
		},
		func(e Entry) bool { return strings.Contains(foldName(e.Name), foldedName) },
	}
	for _, match := range matchers {
		for _, e := range files {
			if match(e) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// matchFolder finds the listed folder named like name, ignoring case and
// normalization.
func matchFolder(entries []Entry, name string) (string, bool) {
	foldedName := foldName(name)
	for _, e := range entries {
		if e.Kind == EntryFolder && e.Name == name {
			return e.Name, true
		}
	}
	for _, e := range entries {
		if e.Kind == EntryFolder && foldName(e.Name) == foldedName {
			return e.Name, true
		}
	}
	return "", false
}
