package utils

import (
	"regexp"
	"strings"
	"testing"
)

func TestValidateBarcodeKnownCodes(t *testing.T) {
	cases := []struct {
		code      string
		valid     bool
		symbology Symbology
	}{
		{"4006381333931", true, SymbologyEAN13},
		{"036000291452", true, SymbologyUPCA},
		{"73513537", true, SymbologyEAN8},
		// corrupted check digits
		{"4006381333930", false, SymbologyEAN13},
		{"036000291453", false, SymbologyUPCA},
		{"73513530", false, SymbologyEAN8},
	}
	for _, tc := range cases {
		result := ValidateBarcode(tc.code)
		if result.IsValid != tc.valid {
			t.Fatalf("ValidateBarcode(%q).IsValid = %v; want %v", tc.code, result.IsValid, tc.valid)
		}
		if result.Symbology != tc.symbology {
			t.Fatalf("ValidateBarcode(%q).Symbology = %q; want %q", tc.code, result.Symbology, tc.symbology)
		}
		if result.ChecksumOk != tc.valid {
			t.Fatalf("ValidateBarcode(%q).ChecksumOk = %v; want %v", tc.code, result.ChecksumOk, tc.valid)
		}
	}
}

func TestValidateBarcodeNormalization(t *testing.T) {
	// dashes and spaces are stripped before classification
	result := ValidateBarcode("4-006381-333931")
	if !result.IsValid || result.Symbology != SymbologyEAN13 {
		t.Fatalf("dashed EAN-13 should validate; got %+v", result)
	}
	result = ValidateBarcode(" 73513537 ")
	if !result.IsValid || result.Symbology != SymbologyEAN8 {
		t.Fatalf("padded EAN-8 should validate; got %+v", result)
	}
}

func TestValidateBarcodeClassification(t *testing.T) {
	// alphanumeric codes classify as CODE-128
	result := ValidateBarcode("ABC123XYZ")
	if !result.IsValid || result.Symbology != SymbologyCode128 {
		t.Fatalf("expected CODE-128; got %+v", result)
	}
	// CODE-39 punctuation is not alphanumeric
	result = ValidateBarcode("PART.NO/42")
	if !result.IsValid || result.Symbology != SymbologyCode39 {
		t.Fatalf("expected CODE-39; got %+v", result)
	}
	// the CODE-39 charset is uppercase only
	result = ValidateBarcode("part.no/42")
	if result.IsValid {
		t.Fatalf("lowercase code set input should be invalid; got %+v", result)
	}
	// outside every charset
	result = ValidateBarcode("abc!")
	if result.IsValid || result.Symbology != SymbologyUnknown {
		t.Fatalf("expected invalid; got %+v", result)
	}
	// too long for CODE-128
	result = ValidateBarcode(strings.Repeat("A", 49))
	if result.IsValid {
		t.Fatalf("expected 49-char code to be invalid; got %+v", result)
	}
	if result := ValidateBarcode(""); result.IsValid {
		t.Fatalf("empty code should be invalid")
	}
}

func TestGenerateBarcodeRoundTrip(t *testing.T) {
	numeric := []Symbology{SymbologyUPCA, SymbologyEAN13, SymbologyEAN8}
	for _, symbology := range numeric {
		for i := 0; i < 50; i++ {
			code, err := GenerateBarcode(symbology)
			if err != nil {
				t.Fatalf("GenerateBarcode(%q): %v", symbology, err)
			}
			result := ValidateBarcode(code)
			if !result.IsValid || result.Symbology != symbology {
				t.Fatalf("generated %q code %q failed validation: %+v", symbology, code, result)
			}
		}
	}
	// code sets have no printable check digit; generated codes must still
	// validate, though a short alphanumeric code classifies as CODE-128
	for _, symbology := range []Symbology{SymbologyCode128, SymbologyCode39} {
		code, err := GenerateBarcode(symbology)
		if err != nil {
			t.Fatalf("GenerateBarcode(%q): %v", symbology, err)
		}
		if result := ValidateBarcode(code); !result.IsValid {
			t.Fatalf("generated %q code %q failed validation: %+v", symbology, code, result)
		}
	}

	if _, err := GenerateBarcode(Symbology("QR")); err == nil {
		t.Fatalf("expected error for unsupported symbology")
	}
}

func TestGenerateSkuPrefix(t *testing.T) {
	pattern := regexp.MustCompile(`^ACM-\d{8}$`)
	sku := GenerateSku(SkuOptions{Name: "Widget", Brand: "ACME"})
	if !pattern.MatchString(sku) {
		t.Fatalf("GenerateSku brand prefix = %q; want match for %s", sku, pattern)
	}

	// custom prefix wins over brand
	sku = GenerateSku(SkuOptions{Name: "Widget", Brand: "ACME", CustomPrefix: "ZZZ"})
	if !strings.HasPrefix(sku, "ZZZ-") {
		t.Fatalf("custom prefix not honored: %q", sku)
	}

	// category is used when brand is empty
	sku = GenerateSku(SkuOptions{Name: "Widget", Category: "Televisions"})
	if !strings.HasPrefix(sku, "TEL-") {
		t.Fatalf("category prefix not honored: %q", sku)
	}

	// fewer than 2 usable characters falls back to PRD
	sku = GenerateSku(SkuOptions{Name: "李"})
	if !strings.HasPrefix(sku, "PRD-") {
		t.Fatalf("expected PRD fallback: %q", sku)
	}
	sku = GenerateSku(SkuOptions{})
	if !strings.HasPrefix(sku, "PRD-") {
		t.Fatalf("expected PRD fallback for empty options: %q", sku)
	}
}

func TestSkuPrefixSkipsEmptySources(t *testing.T) {
	// brand is whitespace only, category supplies the prefix
	prefix := skuPrefix(SkuOptions{Brand: "   ", Category: "TV & Audio"})
	if prefix != "TVA" {
		t.Fatalf("skuPrefix = %q; want TVA", prefix)
	}
	// two usable characters are enough
	prefix = skuPrefix(SkuOptions{Brand: "LG"})
	if prefix != "LG" {
		t.Fatalf("skuPrefix = %q; want LG", prefix)
	}
}
