package extractor

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LabelMisc is the label given to every heuristic entity.
const LabelMisc = "MISC"

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’.\-][\p{L}\p{N}]+)*`)

// connectors may join two capitalised words inside one name, as in
// "Ministry of Defence" or "Abu al Hassan".
var connectors = map[string]bool{"of": true, "de": true, "al": true}

// HeuristicExtractor treats runs of capitalised words as entities. It needs
// no external service and is used when no NER endpoint is configured.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

type token struct {
	text string
	// boundary is set when punctuation or a line break precedes the token.
	boundary bool
}

func tokenize(text string) []token {
	locs := wordPattern.FindAllStringIndex(text, -1)
	tokens := make([]token, 0, len(locs))
	prev := 0
	for _, loc := range locs {
		gap := text[prev:loc[0]]
		tokens = append(tokens, token{
			text:     text[loc[0]:loc[1]],
			boundary: strings.TrimSpace(gap) != "" || strings.ContainsAny(gap, "\n\r"),
		})
		prev = loc[1]
	}
	return tokens
}

func capitalised(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

func (h *HeuristicExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := tokenize(text)
	var entities []Entity
	var run []string
	flush := func() {
		if len(run) > 0 {
			entities = append(entities, Entity{Text: trimPossessive(strings.Join(run, " ")), Label: LabelMisc})
			run = run[:0]
		}
	}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.boundary {
			flush()
		}
		switch {
		case capitalised(tok.text):
			run = append(run, tok.text)
		case connectors[tok.text] && len(run) > 0 && i+1 < len(tokens) &&
			!tokens[i+1].boundary && capitalised(tokens[i+1].text):
			run = append(run, tok.text)
		default:
			flush()
		}
	}
	flush()
	return entities, nil
}

func trimPossessive(s string) string {
	for _, suffix := range []string{"'s", "’s"} {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}
