package vendorkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "lowercase and trim",
			raw:  "  NETFLIX.COM  ",
			want: "netflix.com",
		},
		{
			name: "separators become spaces",
			raw:  "Spotify*Premium",
			want: "spotify premium",
		},
		{
			name: "noise tokens dropped",
			raw:  "Apple Subscription Payment",
			want: "apple",
		},
		{
			name: "trailing card digits dropped",
			raw:  "AMZN Prime 4411",
			want: "amzn prime",
		},
		{
			name: "digits in the middle survive",
			raw:  "2gis pro 42 maps",
			want: "2gis pro 42 maps",
		},
		{
			name: "token cap",
			raw:  "one two three four five six seven eight",
			want: "one two three four five six",
		},
		{
			name: "bullet and pipe separators",
			raw:  "YANDEX•PLUS|MOSCOW",
			want: "yandex plus moscow",
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
		{
			name: "whitespace only",
			raw:  "   ",
			want: "",
		},
		{
			name: "only noise tokens yield empty key",
			raw:  "Payment receipt 1234",
			want: "",
		},
		{
			name: "brackets and dashes",
			raw:  "GOOGLE *YouTubePremium (g.co/helppay#)",
			want: "google youtubepremium g.co helppay#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"  NETFLIX.COM  ",
		"Spotify*Premium",
		"Apple Subscription Payment",
		"AMZN Prime 4411",
		"Payment receipt 1234",
		"YANDEX•PLUS|MOSCOW",
		"a — b — c",
		"кинопоиск подписка",
		"one two three four five six seven",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
