package csql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"genre"`, QuoteIdentifier("genre"))
	assert.Equal(t, `"release_year"`, QuoteIdentifier("release_year"))

	// embedded quotes are stripped, they cannot terminate the identifier
	assert.Equal(t, `"name; DROP TABLE x"`, QuoteIdentifier(`name"; DROP TABLE x`))
}
