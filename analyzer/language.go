package analyzer

import (
	"sync"

	"github.com/pemistahl/lingua-go"
)

// detectSampleChars bounds how much text is fed to the detector.
const detectSampleChars = 4000

var reportLanguages = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Dutch,
	lingua.Russian,
	lingua.Chinese,
	lingua.Japanese,
}

// languageDetector builds its lingua models on first use.
type languageDetector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

func newLanguageDetector() *languageDetector {
	return &languageDetector{}
}

// Detect returns the language name of text, or "" when unsure.
func (d *languageDetector) Detect(text string) string {
	d.once.Do(func() {
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(reportLanguages...).
			WithLowAccuracyMode().
			Build()
	})
	lang, ok := d.detector.DetectLanguageOf(prefix(text, detectSampleChars))
	if !ok {
		return ""
	}
	return lang.String()
}

// languageHint resolves the report language setting against text.
func (a *Analyzer) languageHint(text string) string {
	switch a.cfg.ReportLanguage {
	case "":
		return ""
	case "auto":
		return a.langs.Detect(text)
	default:
		return a.cfg.ReportLanguage
	}
}
