package formula

import "fmt"

// tokenKind identifies a lexical token.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent

	// keywords
	tokAnd
	tokOr
	tokNot
	tokTrue
	tokFalse
	tokNone

	// punctuation
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
	tokAssign

	// operators
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokFloorDiv
	tokPercent
	tokPower
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
)

var tokenNames = map[tokenKind]string{
	tokEOF:      "end of formula",
	tokNumber:   "number",
	tokString:   "string",
	tokIdent:    "identifier",
	tokAnd:      "'and'",
	tokOr:       "'or'",
	tokNot:      "'not'",
	tokTrue:     "'True'",
	tokFalse:    "'False'",
	tokNone:     "'None'",
	tokLParen:   "'('",
	tokRParen:   "')'",
	tokLBracket: "'['",
	tokRBracket: "']'",
	tokComma:    "','",
	tokDot:      "'.'",
	tokAssign:   "'='",
	tokPlus:     "'+'",
	tokMinus:    "'-'",
	tokStar:     "'*'",
	tokSlash:    "'/'",
	tokFloorDiv: "'//'",
	tokPercent:  "'%'",
	tokPower:    "'**'",
	tokEq:       "'=='",
	tokNe:       "'!='",
	tokLt:       "'<'",
	tokLe:       "'<='",
	tokGt:       "'>'",
	tokGe:       "'>='",
}

func (k tokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

var keywords = map[string]tokenKind{
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"True":  tokTrue,
	"False": tokFalse,
	"None":  tokNone,
}

// token is one lexeme. Pos is the byte offset of its first character.
type token struct {
	kind tokenKind
	pos  int
	text string
	num  float64
}
