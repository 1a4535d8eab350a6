package production

// OperationChain names the sequence of operations a product category requires
// after cutting.
type OperationChain string

const (
	// ChainCutSew routes to confection (sewing/finishing).
	ChainCutSew OperationChain = "CUT_SEW"
	// ChainCutOnly ships directly after cutting.
	ChainCutOnly OperationChain = "CUT_ONLY"
	// ChainCutInjection routes to assembly with injected parts.
	ChainCutInjection OperationChain = "CUT_INJECTION"
	// ChainCutJoining routes to assembly by joining.
	ChainCutJoining OperationChain = "CUT_JOINING"
	// ChainBuyResell is purchased finished goods, no workshop operation.
	ChainBuyResell OperationChain = "BUY_RESELL"
)

// RoutingTable maps a product category code to its operation chain. The table
// replaces the historical convention of deriving the category from the first
// two characters of the product reference.
type RoutingTable map[string]OperationChain

// DefaultRoutingTable returns the workshop's category routing.
func DefaultRoutingTable() RoutingTable {
	return RoutingTable{
		"CF": ChainCutSew,       // confectionné: cut then sew
		"DC": ChainCutOnly,      // découpe seule
		"IJ": ChainCutInjection, // injecté
		"AS": ChainCutJoining,   // assemblé
		"NG": ChainBuyResell,    // négoce
	}
}

// ChainFor looks up the chain for a category code.
func (t RoutingTable) ChainFor(category string) (OperationChain, bool) {
	chain, ok := t[category]
	return chain, ok
}

// NextAfterCutting decides the successor status once cutting completes.
// When material was actually cut, confection always follows, whatever the
// category nominally routes to: cut material needs a finishing step.
// Otherwise the category chain decides; an unrecognised category falls back to
// direct shipment.
func (t RoutingTable) NextAfterCutting(hasCutting bool, category string) Status {
	if hasCutting {
		return StatusConfectionToDo
	}
	chain, ok := t.ChainFor(category)
	if !ok {
		return StatusReadyToShip
	}
	switch chain {
	case ChainCutSew:
		return StatusConfectionToDo
	case ChainCutOnly:
		return StatusReadyToShip
	case ChainCutInjection, ChainCutJoining:
		return StatusAssemblyToDo
	case ChainBuyResell:
		return StatusAwaitingPurchaseResale
	default:
		return StatusReadyToShip
	}
}

// stageFor maps a queued status to the stage whose assignment should be opened.
func stageFor(status Status) (Stage, bool) {
	switch status {
	case StatusConfectionToDo:
		return StageConfection, true
	case StatusAssemblyToDo:
		return StageAssembly, true
	case StatusReadyToShip:
		return StageShipment, true
	default:
		return "", false
	}
}
