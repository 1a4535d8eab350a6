package production

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextAfterCutting(t *testing.T) {
	table := DefaultRoutingTable()

	cases := []struct {
		name       string
		hasCutting bool
		category   string
		want       Status
	}{
		{"cut material always goes to confection", true, "DC", StatusConfectionToDo},
		{"cut material overrides injection chain", true, "IJ", StatusConfectionToDo},
		{"cut material overrides resale chain", true, "NG", StatusConfectionToDo},
		{"cut material with unknown category", true, "ZZ", StatusConfectionToDo},
		{"cut-sew routes to confection", false, "CF", StatusConfectionToDo},
		{"cut-only ships directly", false, "DC", StatusReadyToShip},
		{"injection routes to assembly", false, "IJ", StatusAssemblyToDo},
		{"joining routes to assembly", false, "AS", StatusAssemblyToDo},
		{"resale awaits purchase", false, "NG", StatusAwaitingPurchaseResale},
		{"unknown category ships directly", false, "XX", StatusReadyToShip},
		{"empty category ships directly", false, "", StatusReadyToShip},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, table.NextAfterCutting(tc.hasCutting, tc.category))
		})
	}
}

func TestChainFor(t *testing.T) {
	table := DefaultRoutingTable()

	chain, ok := table.ChainFor("CF")
	assert.True(t, ok)
	assert.Equal(t, ChainCutSew, chain)

	_, ok = table.ChainFor("XX")
	assert.False(t, ok)
}

func TestCustomRoutingTable(t *testing.T) {
	table := RoutingTable{"PR": ChainCutOnly}

	assert.Equal(t, StatusReadyToShip, table.NextAfterCutting(false, "PR"))
	// Categories from the default table are unknown to a custom table.
	assert.Equal(t, StatusReadyToShip, table.NextAfterCutting(false, "CF"))
}
