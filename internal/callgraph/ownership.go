package callgraph

// ownershipRelationships tracks, per node, who borrows it and who consumes
// it. The orderer queries and updates it as nodes are scheduled.
type ownershipRelationships struct {
	borrowedBy map[NodeID]map[NodeID]struct{}
	borrows    map[NodeID]map[NodeID]struct{}
	consumedBy map[NodeID]map[NodeID]struct{}
}

func computeOwnership(g *Graph) *ownershipRelationships {
	o := &ownershipRelationships{
		borrowedBy: make(map[NodeID]map[NodeID]struct{}),
		borrows:    make(map[NodeID]map[NodeID]struct{}),
		consumedBy: make(map[NodeID]map[NodeID]struct{}),
	}
	for _, from := range g.NodeIDs() {
		for _, to := range g.Out(from) {
			kind, _ := g.Edge(from, to)
			switch kind {
			case EdgeSharedBorrow, EdgeExclusiveBorrow:
				o.addBorrow(from, to)
			case EdgeMove:
				o.addConsume(from, to)
			}
		}
	}
	return o
}

func (o *ownershipRelationships) addBorrow(node, borrower NodeID) {
	if o.borrowedBy[node] == nil {
		o.borrowedBy[node] = make(map[NodeID]struct{})
	}
	o.borrowedBy[node][borrower] = struct{}{}
	if o.borrows[borrower] == nil {
		o.borrows[borrower] = make(map[NodeID]struct{})
	}
	o.borrows[borrower][node] = struct{}{}
}

func (o *ownershipRelationships) addConsume(node, consumer NodeID) {
	if o.consumedBy[node] == nil {
		o.consumedBy[node] = make(map[NodeID]struct{})
	}
	o.consumedBy[node][consumer] = struct{}{}
}

func (o *ownershipRelationships) isConsumedBy(node, consumer NodeID) bool {
	_, ok := o.consumedBy[node][consumer]
	return ok
}

func (o *ownershipRelationships) isBorrowed(node NodeID) bool {
	return len(o.borrowedBy[node]) > 0
}

// releaseBorrowsOf drops every borrow held by the node: once the node is
// scheduled, the values it borrowed are free to move.
func (o *ownershipRelationships) releaseBorrowsOf(node NodeID) {
	for borrowed := range o.borrows[node] {
		delete(o.borrowedBy[borrowed], node)
	}
	delete(o.borrows, node)
}
