package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dr. Gregory House", "dr-gregory-house"},
		{"Dr. María José Núñez", "dr-maria-jose-nunez"},
		{"  Anna-Lena   Groß ", "anna-lena-gross"},
		{"Çağla Işık", "cagla-isik"},
		{"Søren Kierkegaard", "soren-kierkegaard"},
		{"---", ""},
		{"", ""},
		{"Cardiology & Internal Medicine!!", "cardiology-internal-medicine"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Generate(tt.in))
		})
	}
}
