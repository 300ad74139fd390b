// Package textproc turns raw HTML into the normalized, stemmed token stream
// the index is built from.
package textproc

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/portuguese"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultLanguage is the only language with a bundled stemmer and stopword list.
const DefaultLanguage = "portuguese"

// MinTokenRunes is the shortest token kept after normalization.
const MinTokenRunes = 3

//go:embed stopwords/*.txt
var bundled embed.FS

// accented holds the non-ASCII letters that survive normalization, in both
// cases.
const accented = "áéíóúàèìòùãõâêîôûçÁÉÍÓÚÀÈÌÒÙÃÕÂÊÎÔÛÇ"

// Config selects the language resources for a Tokenizer.
type Config struct {
	Language string
	// StopwordsPath overrides the bundled list when set.
	StopwordsPath string
	Logger        *zap.Logger
}

// Tokenizer applies the normalize, filter and stem pipeline. It is safe for
// concurrent use.
type Tokenizer struct {
	stopwords map[string]struct{}
	stem      func(string) string
	degraded  bool
	logger    *zap.Logger
}

// New loads the stopword list and stemmer for cfg.Language. Missing resources
// never fail construction: the tokenizer falls back to no stopwords and
// identity stemming, logs a warning and reports Degraded.
func New(cfg Config) *Tokenizer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("textproc")
	lang := strings.ToLower(strings.TrimSpace(cfg.Language))
	if lang == "" {
		lang = DefaultLanguage
	}

	if lang != DefaultLanguage {
		logger.Warn("no stemmer for language, stemming and stopwords disabled", zap.String("language", lang))
		return degraded(logger)
	}
	words, err := loadStopwords(cfg.StopwordsPath)
	if err != nil {
		logger.Warn("stopword list unavailable, stemming and stopwords disabled",
			zap.String("path", cfg.StopwordsPath),
			zap.Error(err),
		)
		return degraded(logger)
	}
	t := NewWith(words, StemPortuguese)
	t.logger = logger
	return t
}

// NewWith builds a Tokenizer from explicit resources. A nil stem is identity.
func NewWith(stopwords []string, stem func(string) string) *Tokenizer {
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		set[w] = struct{}{}
	}
	if stem == nil {
		stem = identity
	}
	return &Tokenizer{stopwords: set, stem: stem, logger: zap.NewNop()}
}

func degraded(logger *zap.Logger) *Tokenizer {
	return &Tokenizer{
		stopwords: map[string]struct{}{},
		stem:      identity,
		degraded:  true,
		logger:    logger,
	}
}

func identity(s string) string { return s }

// Degraded reports whether the tokenizer runs without stopwords and stemming.
func (t *Tokenizer) Degraded() bool {
	return t.degraded
}

// Tokenize extracts the visible text of an HTML body and returns its tokens
// in document order. Unparsable markup yields no tokens.
func (t *Tokenizer) Tokenize(body []byte) []string {
	text, err := VisibleText(bytes.NewReader(body))
	if err != nil {
		t.logger.Error("parse html", zap.Error(err))
		return nil
	}
	return t.Tokens(text)
}

// Tokens runs the pipeline over plain text.
func (t *Tokenizer) Tokens(text string) []string {
	fields := strings.Fields(Normalize(text))
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) < MinTokenRunes {
			continue
		}
		if _, stop := t.stopwords[tok]; stop {
			continue
		}
		out = append(out, t.stem(tok))
	}
	return out
}

// VisibleText parses HTML, drops script and style subtrees and joins the
// remaining text nodes with a single space. Parsing runs with scripting
// disabled so noscript content is markup rather than raw text.
func VisibleText(r io.Reader) (string, error) {
	root, err := html.ParseWithOptions(r, html.ParseOptionEnableScripting(false))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Find("script, style").Remove()

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(parts, " "), nil
}

// Normalize drops every rune that is not an ASCII letter, a Portuguese
// accented letter or whitespace, then lowercases the rest. Filtering first
// keeps runes such as 'İ' or the Kelvin sign from folding into ASCII.
func Normalize(s string) string {
	kept := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return r
		case unicode.IsSpace(r):
			return r
		case strings.ContainsRune(accented, r):
			return r
		}
		return -1
	}, s)
	return strings.ToLower(kept)
}

// StemPortuguese applies the Snowball Portuguese stemmer.
func StemPortuguese(word string) string {
	env := snowballstem.NewEnv(word)
	portuguese.Stem(env)
	return env.Current()
}

func loadStopwords(path string) ([]string, error) {
	var r io.Reader
	if path == "" {
		f, err := bundled.Open("stopwords/" + DefaultLanguage + ".txt")
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stopwords: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("stopword list %q is empty", path)
	}
	return words, nil
}
