package categorize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListClassifier(t *testing.T) {
	c := ListClassifier{}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"known first name", "rahul sharma", true},
		{"name with middle token", "priya k nair", true},
		{"single token", "rahul", false},
		{"too many tokens", "rahul sharma and sons trading co", false},
		{"business keyword", "rahul enterprises", false},
		{"pvt ltd", "acme solutions pvt ltd", false},
		{"unknown names", "john doe", false},
		{"numeric noise stripped", "upi rahul sharma 99123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsPersonalTransfer(tt.text))
		})
	}
}
