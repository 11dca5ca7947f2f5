package xml

import (
	"strconv"
	"strings"

	apperrors "github.com/FocuswithJustin/TeiSync/core/errors"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/text/language"
)

// Header holds the bibliographic fields of a teiHeader.
type Header struct {
	Title    string       `json:"title,omitempty"`
	Author   string       `json:"author,omitempty"`
	Edition  string       `json:"edition,omitempty"`
	IDNo     string       `json:"idno,omitempty"`
	Language language.Tag `json:"language"`
}

// Script returns the most likely script of the header language.
func (h Header) Script() language.Script {
	s, _ := h.Language.Script()
	return s
}

var (
	headerExpr   = xpath.MustCompile("//teiHeader")
	titleExpr    = xpath.MustCompile("fileDesc/titleStmt/title")
	authorExpr   = xpath.MustCompile("fileDesc/titleStmt/author")
	editionExpr  = xpath.MustCompile("fileDesc/editionStmt/edition")
	idnoExpr     = xpath.MustCompile("fileDesc/publicationStmt/idno")
	languageExpr = xpath.MustCompile("profileDesc/langUsage/language")
	textExpr     = xpath.MustCompile("//text")
)

// ParseHeader extracts the teiHeader fields of markup. Missing fields are
// left empty and an unknown language is language.Und. A document without a
// teiHeader yields ErrNotFound.
func ParseHeader(markup string) (Header, error) {
	doc, err := Parse([]byte(markup))
	if err != nil {
		return Header{}, &apperrors.ParseError{Format: "TEI header", Message: err.Error(), Err: err}
	}
	hdr := xmlquery.QuerySelector(doc.root, headerExpr)
	if hdr == nil {
		return Header{}, apperrors.NewNotFound("teiHeader", "")
	}

	h := Header{
		Title:    firstText(hdr, titleExpr),
		Author:   firstText(hdr, authorExpr),
		Edition:  firstText(hdr, editionExpr),
		IDNo:     firstText(hdr, idnoExpr),
		Language: language.Und,
	}

	lang := ""
	if n := xmlquery.QuerySelector(hdr, languageExpr); n != nil {
		lang = attrLocal(n, "ident")
	}
	if lang == "" {
		if root := doc.Root(); root != nil {
			lang = root.Attr("lang")
		}
	}
	if tag, err := language.Parse(strings.TrimSpace(lang)); err == nil {
		h.Language = tag
	}
	return h, nil
}

// firstText returns the first non-empty text among the nodes matching expr.
func firstText(top *xmlquery.Node, expr *xpath.Expr) string {
	for _, n := range xmlquery.QuerySelectorAll(top, expr) {
		if t := collapseSpace(n.InnerText()); t != "" {
			return t
		}
	}
	return ""
}

// Unit is a block of text that is translated as a whole.
type Unit struct {
	// Path locates the element, e.g. "/TEI/text/body/p[2]".
	Path string `json:"path"`

	// Tag is the qualified element name.
	Tag string `json:"tag"`

	// ID is the element's xml:id or n attribute, if any.
	ID string `json:"id,omitempty"`

	// Text is the collapsed text content.
	Text string `json:"text"`
}

// blockElements are always units.
var blockElements = map[string]bool{
	"p":      true,
	"head":   true,
	"l":      true,
	"item":   true,
	"byline": true,
}

// unitSkipped hold text that is never translated on its own.
var unitSkipped = map[string]bool{
	"teiHeader": true,
	"rdg":       true,
	"cb:mulu":   true,
}

// unitBreaks separate words in unit text.
var unitBreaks = map[string]bool{
	"lb": true,
	"pb": true,
	"cb": true,
	"l":  true,
}

// TranslatableUnits returns the translatable blocks of the text body in
// document order. A block is a p, head, l, item or byline element, an lg
// without l children, an inline or targeted note, or any other element that
// owns non-whitespace text directly. Notes inside a block become units of
// their own, listed after the block.
func TranslatableUnits(markup string) ([]Unit, error) {
	doc, err := Parse([]byte(markup))
	if err != nil {
		return nil, &apperrors.ParseError{Format: "TEI", Message: err.Error(), Err: err}
	}
	top := xmlquery.QuerySelector(doc.root, textExpr)
	if top == nil {
		top = doc.root
	}

	var units []Unit
	collectUnits(top, &units)
	return units, nil
}

func collectUnits(parent *xmlquery.Node, units *[]Unit) {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		name := qualifiedName(c)
		switch {
		case name == "note":
			if isUnitNote(c) {
				emitUnit(c, units)
			}
		case unitSkipped[name]:
		case isBlock(c), ownsText(c):
			emitUnit(c, units)
		default:
			collectUnits(c, units)
		}
	}
}

func emitUnit(n *xmlquery.Node, units *[]Unit) {
	var sb strings.Builder
	var notes []*xmlquery.Node
	unitText(n, &sb, &notes)

	if text := collapseSpace(sb.String()); text != "" {
		id := attrLocal(n, "id")
		if id == "" {
			id = attrLocal(n, "n")
		}
		*units = append(*units, Unit{Path: nodePath(n), Tag: qualifiedName(n), ID: id, Text: text})
	}
	for _, note := range notes {
		emitUnit(note, units)
	}
}

// unitText gathers the text under n, leaving out skipped elements and
// collecting nested notes for separate units.
func unitText(n *xmlquery.Node, sb *strings.Builder, notes *[]*xmlquery.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			sb.WriteString(c.Data)
		case xmlquery.ElementNode:
			name := qualifiedName(c)
			switch {
			case name == "note":
				if isUnitNote(c) {
					*notes = append(*notes, c)
				}
			case unitSkipped[name]:
			default:
				if unitBreaks[name] {
					sb.WriteByte(' ')
				}
				unitText(c, sb, notes)
			}
		}
	}
}

func isUnitNote(n *xmlquery.Node) bool {
	if attrLocal(n, "target") != "" {
		return true
	}
	for _, f := range strings.Fields(attrLocal(n, "place")) {
		if f == "inline" {
			return true
		}
	}
	return false
}

func isBlock(n *xmlquery.Node) bool {
	name := qualifiedName(n)
	if blockElements[name] {
		return true
	}
	if name != "lg" {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == "l" {
			return false
		}
	}
	return true
}

// ownsText reports whether n has a direct text child that is not blank.
func ownsText(n *xmlquery.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if (c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode) && strings.TrimSpace(c.Data) != "" {
			return true
		}
	}
	return false
}

// nodePath builds an XPath-like location with 1-based sibling positions on
// repeated names.
func nodePath(n *xmlquery.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == xmlquery.ElementNode; cur = cur.Parent {
		name := qualifiedName(cur)
		pos, count := 0, 0
		if cur.Parent != nil {
			for s := cur.Parent.FirstChild; s != nil; s = s.NextSibling {
				if s.Type != xmlquery.ElementNode || qualifiedName(s) != name {
					continue
				}
				count++
				if s == cur {
					pos = count
				}
			}
		}
		if count > 1 {
			name += "[" + strconv.Itoa(pos) + "]"
		}
		parts = append(parts, name)
	}
	var sb strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(parts[i])
	}
	return sb.String()
}
