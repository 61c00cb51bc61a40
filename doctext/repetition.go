package doctext

import (
	"strings"

	"github.com/voxread/readkit/observability"
)

// AnalyzerConfig carries the band geometry and repetition thresholds for
// boilerplate classification. The numbers are empirically tuned; change
// them only with a corpus of real documents at hand.
type AnalyzerConfig struct {
	// TopBand and BottomBand are fractions of the page height measured
	// from the top and bottom edges. Fragments outside both bands are
	// never classified as boilerplate.
	TopBand    float64
	BottomBand float64

	// ShortRepeatPages is the cross-page repetition threshold for very
	// short fragments (length <= 2). LongRepeatPages applies to fragments
	// of length >= 3, deliberately higher so legitimate repeated
	// technical terms survive.
	ShortRepeatPages int
	LongRepeatPages  int

	// TinyLen is the length at or below which an in-band fragment is
	// dropped regardless of repetition (page numbers, bullets).
	TinyLen int
}

// DefaultAnalyzerConfig returns the tuned defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		TopBand:          0.15,
		BottomBand:       0.20,
		ShortRepeatPages: 2,
		LongRepeatPages:  4,
		TinyLen:          3,
	}
}

type repKey struct {
	norm   string
	length int
}

// RepetitionMap records, for every normalized fragment text, the set of
// pages it occurs on. The raw length is part of the key so that distinct
// strings that normalize identically but differ in whitespace do not
// collide.
type RepetitionMap struct {
	cfg   AnalyzerConfig
	pages map[repKey]map[int]struct{}
}

// Analyzer scans every page's fragments and builds a RepetitionMap used by
// the canonical builder's boilerplate filter.
type Analyzer struct {
	cfg AnalyzerConfig
	log observability.Logger
}

// NewAnalyzer creates an Analyzer with cfg. A zero cfg is replaced by the
// defaults.
func NewAnalyzer(cfg AnalyzerConfig, log observability.Logger) *Analyzer {
	if cfg == (AnalyzerConfig{}) {
		cfg = DefaultAnalyzerConfig()
	}
	if log == nil {
		log = observability.Default()
	}
	return &Analyzer{cfg: cfg, log: log}
}

// Analyze builds the repetition map for pages.
func (a *Analyzer) Analyze(pages []PageText) *RepetitionMap {
	rm := &RepetitionMap{cfg: a.cfg, pages: make(map[repKey]map[int]struct{})}
	total := 0
	for _, p := range pages {
		for _, f := range p.Fragments {
			norm := NormalizeText(f.Text)
			if norm == "" {
				continue
			}
			k := repKey{norm: norm, length: len(f.Text)}
			set, ok := rm.pages[k]
			if !ok {
				set = make(map[int]struct{})
				rm.pages[k] = set
			}
			set[p.Page] = struct{}{}
			total++
		}
	}
	a.log.Debug("repetition analysis complete",
		observability.Int("pages", len(pages)),
		observability.Int("fragments", total),
		observability.Int("distinct", len(rm.pages)))
	return rm
}

// PageCount returns the number of distinct pages the fragment text occurs
// on, keyed by normalized text and raw length.
func (rm *RepetitionMap) PageCount(text string) int {
	k := repKey{norm: NormalizeText(text), length: len(text)}
	return len(rm.pages[k])
}

// IsBoilerplate classifies a fragment as header/footer boilerplate. A
// fragment qualifies only when it sits in the top or bottom page band, is
// not a common stop word, and either repeats across enough pages (threshold
// scaled by length) or is tiny.
func (rm *RepetitionMap) IsBoilerplate(f Fragment, pageHeight float64) bool {
	if pageHeight <= 0 {
		return false
	}
	inTop := f.Y <= pageHeight*rm.cfg.TopBand
	inBottom := f.Y >= pageHeight*(1-rm.cfg.BottomBand)
	if !inTop && !inBottom {
		return false
	}
	norm := NormalizeText(f.Text)
	if norm == "" {
		return true
	}
	if isStopWord(norm) {
		return false
	}
	trimmed := strings.TrimSpace(f.Text)
	if len(trimmed) <= rm.cfg.TinyLen {
		return true
	}
	threshold := rm.cfg.LongRepeatPages
	if len(trimmed) <= 2 {
		threshold = rm.cfg.ShortRepeatPages
	}
	return rm.PageCount(f.Text) >= threshold
}

// Common English and Spanish words that must never be suppressed even when
// they land in a header/footer band on many pages.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "with": {}, "is": {},
	"are": {}, "was": {}, "be": {}, "it": {}, "as": {}, "that": {}, "this": {},
	"el": {}, "la": {}, "los": {}, "las": {}, "un": {}, "una": {}, "y": {},
	"o": {}, "de": {}, "del": {}, "en": {}, "con": {}, "por": {}, "para": {},
	"es": {}, "que": {}, "se": {}, "no": {}, "al": {},
}

func isStopWord(norm string) bool {
	_, ok := stopWords[norm]
	return ok
}
