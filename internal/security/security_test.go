package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLikePattern(t *testing.T) {
	assert.Equal(t, `50\%`, EscapeLikePattern("50%"))
	assert.Equal(t, `a\_b`, EscapeLikePattern("a_b"))
	assert.Equal(t, `c:\\x`, EscapeLikePattern(`c:\x`))
}

func TestSearchCondition(t *testing.T) {
	cond, args := SearchCondition([]string{"residences.resident_name", "house_no", "bad;col"}, " Asha ")

	assert.Equal(t, `(LOWER(residences.resident_name) LIKE ? ESCAPE '\' OR LOWER(house_no) LIKE ? ESCAPE '\')`, cond)
	assert.Equal(t, []interface{}{"%asha%", "%asha%"}, args)

	cond, args = SearchCondition([]string{"house_no"}, "  ")
	assert.Empty(t, cond)
	assert.Nil(t, args)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "moved to town", SanitizeText(`<script>alert(1)</script>moved to <b>town</b> `))
	assert.Equal(t, "Tom & Jerry", SanitizeText("Tom & Jerry"))
	assert.Equal(t, "", SanitizeText(""))
}
