package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchOrExprQuotesReservedCharacters(t *testing.T) {
	assert.Equal(t,
		`(name.ilike."*editor*",description.ilike."*editor*")`,
		searchOrExpr("editor"))

	// commas and parentheses from user input must stay inside the quoted
	// pattern instead of terminating the or= expression
	assert.Equal(t,
		`(name.ilike."*a,b)*",description.ilike."*a,b)*")`,
		searchOrExpr("a,b)"))
}

func TestRestQuoteEscapesQuotesAndBackslashes(t *testing.T) {
	assert.Equal(t, `"plain"`, restQuote("plain"))
	assert.Equal(t, `"say \"hi\""`, restQuote(`say "hi"`))
	assert.Equal(t, `"back\\slash"`, restQuote(`back\slash`))
}
