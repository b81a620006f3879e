// Package text normalizes document and query text: case folding,
// tokenization, stopword removal and light stemming. Documents and
// queries must be processed identically for retrieval to work, so both
// stages build their processor from the same config section.
package text

import (
	"strings"
	"unicode"

	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// Processor applies the configured normalization steps in a fixed order:
// lowercase, tokenize, remove stopwords, stem.
type Processor struct {
	lowercase bool
	tokenize  func(string) []string
	stopwords map[string]struct{}
	stem      func(string) string
}

// NewProcessor builds a processor from a process section. Unknown
// tokenizer, stopword list or stemmer names are config errors.
func NewProcessor(conf config.ProcessSection) (*Processor, error) {
	p := &Processor{lowercase: conf.Lowercase == nil || *conf.Lowercase}

	tokenize := conf.Tokenize
	if tokenize == "" {
		tokenize = config.DefaultTokenize
	}
	switch tokenize {
	case "whitespace":
		p.tokenize = strings.Fields
	case "simple":
		p.tokenize = simpleTokenize
	default:
		return nil, internalerr.Config("%s is not a valid tokenizer", tokenize)
	}

	switch conf.Stopwords {
	case "", "none":
	case "english":
		p.stopwords = englishStopwords
	default:
		return nil, internalerr.Config("%s is not a valid stopword list", conf.Stopwords)
	}

	switch conf.Stem {
	case "":
	case "s":
		p.stem = sStem
	default:
		return nil, internalerr.Config("%s is not a valid stemmer", conf.Stem)
	}
	return p, nil
}

// Process normalizes text and returns it as a space-joined token string.
func (p *Processor) Process(text string) string {
	return strings.Join(p.Tokens(text), " ")
}

// Tokens normalizes text and returns the tokens.
func (p *Processor) Tokens(text string) []string {
	if p.lowercase {
		text = strings.ToLower(text)
	}
	tokens := p.tokenize(text)
	if p.stopwords != nil {
		kept := tokens[:0]
		for _, tok := range tokens {
			if _, ok := p.stopwords[tok]; !ok {
				kept = append(kept, tok)
			}
		}
		tokens = kept
	}
	if p.stem != nil {
		for i, tok := range tokens {
			tokens[i] = p.stem(tok)
		}
	}
	return tokens
}

// simpleTokenize splits on anything that is not a letter or digit.
func simpleTokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// sStem is the Harman s-stemmer. It only strips plural endings, which is
// enough to conflate the most common English variants.
func sStem(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		if !strings.HasSuffix(word, "eies") && !strings.HasSuffix(word, "aies") {
			return word[:len(word)-3] + "y"
		}
	case strings.HasSuffix(word, "es") && len(word) > 3:
		if !strings.HasSuffix(word, "aes") && !strings.HasSuffix(word, "ees") && !strings.HasSuffix(word, "oes") {
			return word[:len(word)-1]
		}
	case strings.HasSuffix(word, "s") && len(word) > 2:
		if !strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "ss") {
			return word[:len(word)-1]
		}
	}
	return word
}

// englishStopwords is the Lucene English stopword list.
var englishStopwords = toSet([]string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"for", "if", "in", "into", "is", "it",
	"no", "not", "of", "on", "or", "such",
	"that", "the", "their", "then", "there", "these",
	"they", "this", "to", "was", "will", "with",
})

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
