package utils

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"
)

type Symbology string

const (
	SymbologyUPCA    Symbology = "UPC-A"
	SymbologyEAN13   Symbology = "EAN-13"
	SymbologyEAN8    Symbology = "EAN-8"
	SymbologyCode128 Symbology = "CODE-128"
	SymbologyCode39  Symbology = "CODE-39"
	SymbologyUnknown Symbology = ""
)

type BarcodeValidation struct {
	IsValid    bool      `json:"isValid"`
	Symbology  Symbology `json:"symbology"`
	ChecksumOk bool      `json:"checksumOk"`
}

const code39Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 .$/+%"

// digitCheckDigit computes the weighted mod-10 check digit over body.
// Positions are 1-based from the left. UPC-A and EAN-8 weight odd
// positions by 3; EAN-13 weights even positions by 3.
func digitCheckDigit(body string, tripleOdd bool) int {
	sum := 0
	for i, r := range body {
		digit := int(r - '0')
		odd := (i+1)%2 == 1
		if odd == tripleOdd {
			sum += digit * 3
		} else {
			sum += digit
		}
	}
	return (10 - sum%10) % 10
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isCode39(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(code39Charset, r) {
			return false
		}
	}
	return true
}

// normalizeBarcode strips whitespace and dashes before classification.
func normalizeBarcode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsSpace(r) || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func checksumTripleOdd(symbology Symbology) bool {
	// EAN-13 is the only numeric symbology weighting even positions by 3
	return symbology != SymbologyEAN13
}

// ValidateBarcode classifies code by length and charset and verifies the
// trailing check digit for the fixed-length numeric symbologies. CODE-128
// and CODE-39 carry no printable check digit so only the charset is checked.
func ValidateBarcode(code string) BarcodeValidation {
	normalized := normalizeBarcode(code)

	if isAllDigits(normalized) {
		var symbology Symbology
		switch len(normalized) {
		case 12:
			symbology = SymbologyUPCA
		case 13:
			symbology = SymbologyEAN13
		case 8:
			symbology = SymbologyEAN8
		}
		if symbology != SymbologyUnknown {
			body := normalized[:len(normalized)-1]
			expected := digitCheckDigit(body, checksumTripleOdd(symbology))
			actual := int(normalized[len(normalized)-1] - '0')
			ok := expected == actual
			return BarcodeValidation{IsValid: ok, Symbology: symbology, ChecksumOk: ok}
		}
	}

	if isAlphanumeric(normalized) && len(normalized) <= 48 {
		return BarcodeValidation{IsValid: true, Symbology: SymbologyCode128, ChecksumOk: true}
	}
	if isCode39(normalized) && len(normalized) <= 43 {
		return BarcodeValidation{IsValid: true, Symbology: SymbologyCode39, ChecksumOk: true}
	}

	return BarcodeValidation{IsValid: false, Symbology: SymbologyUnknown, ChecksumOk: false}
}

// GenerateBarcode produces a random code of the given symbology. Numeric
// symbologies get a valid check digit appended using the same weighting
// as ValidateBarcode.
func GenerateBarcode(symbology Symbology) (string, error) {
	switch symbology {
	case SymbologyUPCA:
		return generateNumericBarcode(11, checksumTripleOdd(symbology)), nil
	case SymbologyEAN13:
		return generateNumericBarcode(12, checksumTripleOdd(symbology)), nil
	case SymbologyEAN8:
		return generateNumericBarcode(7, checksumTripleOdd(symbology)), nil
	case SymbologyCode128:
		return randomFromCharset("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", 12), nil
	case SymbologyCode39:
		return randomFromCharset("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", 10), nil
	default:
		return "", errors.New("unsupported symbology: " + string(symbology))
	}
}

func generateNumericBarcode(bodyLength int, tripleOdd bool) string {
	var b strings.Builder
	for i := 0; i < bodyLength; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	body := b.String()
	return fmt.Sprintf("%s%d", body, digitCheckDigit(body, tripleOdd))
}

func randomFromCharset(charset string, length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		b.WriteByte(charset[rand.Intn(len(charset))])
	}
	return b.String()
}

type SkuOptions struct {
	Name         string `json:"name"`
	Brand        string `json:"brand"`
	Category     string `json:"category"`
	CustomPrefix string `json:"custom_prefix"`
}

// skuPrefix extracts the first 3 alphanumeric characters (uppercased) of
// the first non-empty source. Fewer than 2 usable characters falls back
// to "PRD".
func skuPrefix(opts SkuOptions) string {
	sources := []string{opts.CustomPrefix, opts.Brand, opts.Category, opts.Name}
	for _, source := range sources {
		if strings.TrimSpace(source) == "" {
			continue
		}
		var b strings.Builder
		for _, r := range strings.ToUpper(source) {
			if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
				if b.Len() == 3 {
					break
				}
			}
		}
		if b.Len() >= 2 {
			return b.String()
		}
	}
	return "PRD"
}

// GenerateSku builds a SKU of the form PREFIX-NNNNNNNN where the digits are
// the last 6 digits of the current epoch milliseconds followed by a 2-digit
// random number. Uniqueness against existing SKUs is the caller's concern;
// retry with a perturbed input on collision.
func GenerateSku(opts SkuOptions) string {
	prefix := skuPrefix(opts)
	millis := time.Now().UnixMilli() % 1000000
	return fmt.Sprintf("%s-%06d%02d", prefix, millis, rand.Intn(100))
}
