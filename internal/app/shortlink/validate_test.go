package shortlink

import (
	"errors"
	"testing"
)

func TestParseLongURL(t *testing.T) {
	ok := map[string]string{
		"https://example.com":         "https://example.com",
		"  http://example.com/a?b=c ": "http://example.com/a?b=c",
	}
	for in, want := range ok {
		got, err := ParseLongURL(in)
		if err != nil {
			t.Fatalf("ParseLongURL(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLongURL(%q): got %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "example.com", "ftp://example.com", "https://", "http://%zz"} {
		if _, err := ParseLongURL(in); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("ParseLongURL(%q): got %v, want ErrInvalidURL", in, err)
		}
	}
}
