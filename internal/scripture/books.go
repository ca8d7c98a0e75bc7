package scripture

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// canonicalBooks is the 66-book Protestant canon in scrollmapper naming and order.
var canonicalBooks = [...]string{
	"Genesis", "Exodus", "Leviticus", "Numbers", "Deuteronomy", "Joshua", "Judges", "Ruth",
	"I Samuel", "II Samuel", "I Kings", "II Kings", "I Chronicles", "II Chronicles",
	"Ezra", "Nehemiah", "Esther", "Job", "Psalms", "Proverbs", "Ecclesiastes", "Song of Solomon",
	"Isaiah", "Jeremiah", "Lamentations", "Ezekiel", "Daniel", "Hosea", "Joel", "Amos",
	"Obadiah", "Jonah", "Micah", "Nahum", "Habakkuk", "Zephaniah", "Haggai", "Zechariah", "Malachi",
	"Matthew", "Mark", "Luke", "John", "Acts", "Romans", "I Corinthians", "II Corinthians",
	"Galatians", "Ephesians", "Philippians", "Colossians", "I Thessalonians", "II Thessalonians",
	"I Timothy", "II Timothy", "Titus", "Philemon", "Hebrews", "James", "I Peter", "II Peter",
	"I John", "II John", "III John", "Jude", "Revelation",
}

// extraAliases covers French names and common English variants, keyed by
// normalized form.
var extraAliases = map[string]string{
	"genese": "Genesis", "exode": "Exodus", "levitique": "Leviticus", "nombres": "Numbers",
	"deuteronome": "Deuteronomy", "josue": "Joshua", "juges": "Judges",
	"1 rois": "I Kings", "2 rois": "II Kings", "1 chroniques": "I Chronicles", "2 chroniques": "II Chronicles",
	"esdras": "Ezra", "nehemie": "Nehemiah",
	"psaume": "Psalms", "psaumes": "Psalms", "psalm": "Psalms", "ps": "Psalms",
	"proverbes": "Proverbs", "ecclesiaste": "Ecclesiastes",
	"cantique": "Song of Solomon", "cantique des cantiques": "Song of Solomon", "song of songs": "Song of Solomon",
	"esaie": "Isaiah", "isaie": "Isaiah", "jeremie": "Jeremiah", "ezechiel": "Ezekiel",
	"osee": "Hosea", "abdias": "Obadiah", "jonas": "Jonah", "michee": "Micah",
	"habacuc": "Habakkuk", "habakuk": "Habakkuk", "sophonie": "Zephaniah", "aggee": "Haggai",
	"zacharie": "Zechariah", "malachie": "Malachi",
	"matthieu": "Matthew", "marc": "Mark", "luc": "Luke", "jean": "John",
	"actes": "Acts", "actes des apotres": "Acts", "romains": "Romans",
	"1 corinthiens": "I Corinthians", "2 corinthiens": "II Corinthians",
	"galates": "Galatians", "ephesiens": "Ephesians", "philippiens": "Philippians", "colossiens": "Colossians",
	"1 thessaloniciens": "I Thessalonians", "2 thessaloniciens": "II Thessalonians",
	"1 timothee": "I Timothy", "2 timothee": "II Timothy", "tite": "Titus",
	"hebreux": "Hebrews", "jacques": "James",
	"1 pierre": "I Peter", "2 pierre": "II Peter",
	"1 jean": "I John", "2 jean": "II John", "3 jean": "III John",
	"apocalypse": "Revelation", "revelation of john": "Revelation", "revelations": "Revelation",
}

// bookIndex maps a normalized name to a position in canonicalBooks.
var bookIndex = func() map[string]int {
	pos := make(map[string]int, len(canonicalBooks))
	for i, b := range canonicalBooks {
		pos[b] = i
	}
	idx := make(map[string]int, len(canonicalBooks)+len(extraAliases))
	for i, b := range canonicalBooks {
		idx[normalizeBook(b)] = i
	}
	for alias, canon := range extraAliases {
		idx[normalizeBook(alias)] = pos[canon]
	}
	return idx
}()

var ordinalPrefixes = []struct{ from, to string }{
	{"iii ", "3 "}, {"ii ", "2 "}, {"i ", "1 "},
	{"1re ", "1 "}, {"1er ", "1 "}, {"2e ", "2 "}, {"3e ", "3 "},
}

// normalizeBook lowercases, strips diacritics, collapses whitespace and turns a
// leading roman or French ordinal into a digit.
func normalizeBook(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for _, p := range ordinalPrefixes {
		if strings.HasPrefix(s, p.from) {
			return p.to + s[len(p.from):]
		}
	}
	// "1jean" -> "1 jean"
	if len(s) > 1 && s[0] >= '1' && s[0] <= '3' && s[1] != ' ' {
		return s[:1] + " " + s[1:]
	}
	return s
}

// CanonicalBook returns the scrollmapper name for a French or English book name.
func CanonicalBook(name string) (string, bool) {
	i, ok := bookIndex[normalizeBook(name)]
	if !ok {
		return "", false
	}
	return canonicalBooks[i], true
}
