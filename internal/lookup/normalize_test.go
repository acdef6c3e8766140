package lookup

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"İSTANBUL", "istanbul"},
		{"izmir", "izmir"},
		{"Çorum", "corum"},
		{"ŞIRNAK", "sirnak"},
		{"Ağrı", "agri"},
		{"Müdürlük", "mudurluk"},
		{"  Ticaret   Sicili  ", "ticaret sicili"},
		{"A.Ş.", "a s"},
		{"Foo-Bar/Baz", "foo bar baz"},
		{"Kuruluş (2024)", "kurulus 2024"},
		{"日本語", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, s := range []string{"İZMİR", "Ticaret Ünvanı", "a.b.c"} {
		once := Normalize(s)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", s, once, twice)
		}
	}
}
