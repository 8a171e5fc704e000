package i18n

import (
	"net/http/httptest"
	"testing"

	"golang.org/x/text/language"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want language.Tag
	}{
		{"", language.English},
		{"en", language.English},
		{"es", language.Spanish},
		{"es-MX", language.Spanish},
		{"not a tag", language.English},
		{"ja", language.English},
	}
	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Fatalf("Parse(%q)=%v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPrinterTranslates(t *testing.T) {
	t.Parallel()

	if got := Printer(language.English).Sprintf(MsgMinLength, 3); got != "Must be at least 3 characters." {
		t.Fatalf("en=%q", got)
	}
	if got := Printer(language.Spanish).Sprintf(MsgMinLength, 3); got != "Debe tener al menos 3 caracteres." {
		t.Fatalf("es=%q", got)
	}
}

func TestEveryKeyHasBothLocales(t *testing.T) {
	t.Parallel()

	for key, tr := range entries {
		for _, tag := range supportedTags {
			if tr[tag] == "" {
				t.Fatalf("key %q missing %v translation", key, tag)
			}
		}
	}
}

func TestFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	if got := FromRequest(r, language.Spanish); got != language.Spanish {
		t.Fatalf("no header: got %v", got)
	}
	r.Header.Set("Accept-Language", "es-AR,es;q=0.9,en;q=0.5")
	if got := FromRequest(r, language.English); got != language.Spanish {
		t.Fatalf("es header: got %v", got)
	}
}
