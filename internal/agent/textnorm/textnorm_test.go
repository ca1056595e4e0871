package textnorm

import (
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"empty":              {"", ""},
		"accents":            {"  Sí, Catálogo!! ", "si catalogo"},
		"whitespace":         {"iniciar \t\n  sesión", "iniciar sesion"},
		"punctuation only":   {"¿¡...!?", ""},
		"quantity":           {"2x 123", "2x 123"},
		"enye":               {"Piñata", "pinata"},
		"upper dotted i":     {"İSTANBUL", "istanbul"},
		"symbols and emoji":  {"🛒 ver $carrito$", "ver carrito"},
		"keeps digits":       {"55-1234-5678", "5512345678"},
		"mixed case phrases": {"Ya Está", "ya esta"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	samples := []string{
		"Hola, ¿cómo estás?", "ÅÉÎÕÜ", "á", "ﬁ", "İ", "½ kilo", " x y", "Ǆ",
	}
	for _, s := range samples {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}

	prop := func(s string) bool {
		once := Normalize(s)
		return Normalize(once) == once
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 2000}))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Calle Falsa 123", Sanitize("  <Calle> {Falsa} $123` "))
	assert.Equal(t, "", Sanitize(""))

	long := strings.Repeat("á", MaxInputRunes+20)
	assert.Len(t, []rune(Sanitize(long)), MaxInputRunes)
}
