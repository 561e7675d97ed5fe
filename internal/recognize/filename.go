package recognize

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

// FilenameProvider is the last-resort fallback: it derives a name-only guess
// from the upload's own filename so a scan never fails just because the
// vision provider was down. Confidence is deliberately low.
type FilenameProvider struct{}

// NewFilenameProvider returns the filename heuristic provider
func NewFilenameProvider() *FilenameProvider { return &FilenameProvider{} }

func (p *FilenameProvider) Code() string { return "filename" }

var (
	numberToken = regexp.MustCompile(`^\d{1,4}(/\d{1,4})?$`)
	setToken    = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,5}$`)
	counterLike = regexp.MustCompile(`^(IMG|DSC|PXL|PHOTO|SCAN)[-_\d]*$`)
)

// Recognize splits the base name on separators and classifies the tokens:
// a digits (or digits/digits) token is the collector number, a short
// all-caps token is the set code, everything else joins into the name.
func (p *FilenameProvider) Recognize(_ context.Context, _ []byte, filename string) (*Guess, error) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || counterLike.MatchString(strings.ToUpper(base)) {
		// Camera-roll names carry no card identity
		return &Guess{}, nil
	}

	guess := &Guess{Confidence: 0.2}
	var nameParts []string
	for _, tok := range strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	}) {
		switch {
		case numberToken.MatchString(tok):
			// Later digit tokens are print-run totals ("4/102" split apart)
			if guess.Number == "" {
				guess.Number = tok
			}
		case guess.SetCode == "" && setToken.MatchString(tok) && len(nameParts) > 0:
			guess.SetCode = tok
		default:
			nameParts = append(nameParts, tok)
		}
	}
	guess.Name = strings.Join(nameParts, " ")
	return guess, nil
}
