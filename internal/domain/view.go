package domain

// PositionWithLoads is a position with its member loads resolved
type PositionWithLoads struct {
	Position *Position
	Loads    []*Load
	Capacity Capacity
}

// DispositionView is the read-only projection returned for one direction
type DispositionView struct {
	Direction       Direction
	DraftPositions  []PositionWithLoads
	ActivePositions []PositionWithLoads
	UnassignedLoads []*Load
}

// ResolveLoads returns the loads of p in membership order. Members missing
// from byID are skipped.
func ResolveLoads(p *Position, byID map[string]*Load) []*Load {
	loads := make([]*Load, 0, len(p.LoadIDs))
	for _, id := range p.LoadIDs {
		if load, ok := byID[id]; ok {
			loads = append(loads, load)
		}
	}
	return loads
}

// BuildDispositionView composes the view from the positions and loads of one
// direction. A load is unassigned when no draft position holds it.
func BuildDispositionView(direction Direction, drafts, confirmed []*Position, loads []*Load) *DispositionView {
	byID := make(map[string]*Load, len(loads))
	for _, load := range loads {
		byID[load.LoadID] = load
	}

	view := &DispositionView{
		Direction:       direction,
		DraftPositions:  make([]PositionWithLoads, 0, len(drafts)),
		ActivePositions: make([]PositionWithLoads, 0, len(confirmed)),
		UnassignedLoads: make([]*Load, 0),
	}

	held := make(map[string]bool)
	for _, p := range drafts {
		members := ResolveLoads(p, byID)
		for _, id := range p.LoadIDs {
			held[id] = true
		}
		view.DraftPositions = append(view.DraftPositions, PositionWithLoads{
			Position: p,
			Loads:    members,
			Capacity: p.Capacity(members),
		})
	}

	for _, p := range confirmed {
		members := ResolveLoads(p, byID)
		view.ActivePositions = append(view.ActivePositions, PositionWithLoads{
			Position: p,
			Loads:    members,
			Capacity: p.Capacity(members),
		})
	}

	for _, load := range loads {
		if !held[load.LoadID] {
			view.UnassignedLoads = append(view.UnassignedLoads, load)
		}
	}

	return view
}
