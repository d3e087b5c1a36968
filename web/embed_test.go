package web

import (
	"strings"
	"testing"
)

func readIndex(t *testing.T) string {
	t.Helper()
	b, err := FS.ReadFile("index.html")
	if err != nil {
		t.Fatalf("read index.html: %v", err)
	}
	return string(b)
}

func TestIndex_DecoderFormats(t *testing.T) {
	page := readIndex(t)
	for _, f := range []string{"ean_13", "ean_8", "code_128", "code_39", "upc_a", "upc_e"} {
		if !strings.Contains(page, "'"+f+"'") {
			t.Errorf("barcode decoder does not request %s", f)
		}
	}
}

func TestIndex_LookupButtonLockedWhileRunning(t *testing.T) {
	page := readIndex(t)
	for _, want := range []string{
		"btn.disabled = true",
		"finally { intakeBusy = false; btn.disabled = false; }",
		"if (intakeBusy) return;",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("index.html is missing %q", want)
		}
	}
}
