package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"wikimod/internal/models"
)

// Title validation errors.
var (
	ErrEmptyTitle       = errors.New("title is empty")
	ErrTitleTooLong     = errors.New("title exceeds 255 bytes")
	ErrTitleInvalidChar = errors.New("title contains a forbidden character")
	ErrInvalidUsername  = errors.New("invalid username")
)

// maxTitleBytes matches the width of the title columns.
const maxTitleBytes = 255

// titleForbidden are characters that can never appear in a page name.
const titleForbidden = "#<>[]|{}\x00\n\r\t"

// TitleParser turns user input like "talk:foo bar" into a normalized title.
type TitleParser struct {
	namespaces map[string]int // lowercased name or alias -> id
}

// NewTitleParser creates a parser that knows the given namespace names.
func NewTitleParser(names map[string]int) *TitleParser {
	p := &TitleParser{namespaces: make(map[string]int, len(names))}
	for name, id := range names {
		p.namespaces[normalizeNamespace(name)] = id
	}
	return p
}

// DefaultTitleParser returns a parser for the built-in namespaces.
func DefaultTitleParser() *TitleParser {
	names := make(map[string]int, len(models.DefaultNamespaces))
	for id, name := range models.DefaultNamespaces {
		if name != "" {
			names[name] = id
		}
	}
	return NewTitleParser(names)
}

// Parse parses a prefixed page name.
func (p *TitleParser) Parse(text string) (models.Title, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "_", " "))

	ns := models.NSMain
	if i := strings.IndexByte(text, ':'); i > 0 {
		if id, ok := p.namespaces[normalizeNamespace(text[:i])]; ok {
			ns = id
			text = strings.TrimSpace(text[i+1:])
		}
	}

	return p.MakeTitle(ns, text)
}

// MakeTitle validates a page name within a known namespace.
func (p *TitleParser) MakeTitle(ns int, text string) (models.Title, error) {
	text = collapseSpaces(strings.TrimSpace(strings.ReplaceAll(text, "_", " ")))
	if text == "" {
		return models.Title{}, ErrEmptyTitle
	}
	if strings.ContainsAny(text, titleForbidden) {
		return models.Title{}, ErrTitleInvalidChar
	}
	if len(text) > maxTitleBytes {
		return models.Title{}, ErrTitleTooLong
	}
	return models.NewTitle(ns, upperFirst(text)), nil
}

// ValidateUsername checks that a name can be used for an account. The
// characters '[' and ']' are reserved because preload identities start with them.
func ValidateUsername(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxTitleBytes {
		return ErrInvalidUsername
	}
	if strings.ContainsAny(name, titleForbidden+"/@:") {
		return ErrInvalidUsername
	}
	return nil
}

func normalizeNamespace(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
