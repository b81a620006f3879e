package text

import (
	"strings"

	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// Language codes are stored in their ISO 639-3 form. Inputs may use the
// two-letter 639-1 codes; both are accepted and standardized.
var langCodes = map[string]string{
	"ar": "ara", "ara": "ara",
	"de": "deu", "deu": "deu",
	"en": "eng", "eng": "eng",
	"es": "spa", "spa": "spa",
	"fa": "fas", "fas": "fas",
	"fr": "fra", "fra": "fra",
	"ru": "rus", "rus": "rus",
	"zh": "zho", "zho": "zho",
}

// StandardizeLang maps a language code to its three-letter form. Unknown
// codes are config errors.
func StandardizeLang(code string) (string, error) {
	if std, ok := langCodes[strings.ToLower(code)]; ok {
		return std, nil
	}
	return "", internalerr.Config("%s is not a valid language code", code)
}
