package application

import "github.com/wms-platform/disposition-service/internal/domain"

// ToPositionDTO converts a position and its resolved loads to a PositionDTO
func ToPositionDTO(p *domain.Position, loads []*domain.Load) *PositionDTO {
	if p == nil {
		return nil
	}
	return toPositionDTO(p, loads, p.Capacity(loads))
}

func toPositionDTO(p *domain.Position, loads []*domain.Load, capacity domain.Capacity) *PositionDTO {

	loadIDs := make([]string, len(p.LoadIDs))
	copy(loadIDs, p.LoadIDs)

	return &PositionDTO{
		PositionID:       p.PositionID,
		Type:             string(p.Type),
		State:            string(p.State),
		LoadIDs:          loadIDs,
		Loads:            ToLoadDTOs(loads),
		Capacity:         ToCapacityDTO(capacity),
		Reference:        p.Reference,
		VehicleRef:       p.VehicleRef,
		RouteRef:         p.RouteRef,
		PlannedDeparture: p.PlannedDeparture,
		Notes:            p.Notes,
		Version:          p.Version,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		ConfirmedAt:      p.ConfirmedAt,
	}
}

// ToCapacityDTO converts domain capacity totals
func ToCapacityDTO(c domain.Capacity) CapacityDTO {
	return CapacityDTO{
		TotalVolume:    c.TotalVolume,
		TotalWeight:    c.TotalWeight,
		TotalLademetre: c.TotalLademetre,
		LoadCount:      c.LoadCount,
	}
}

// ToLoadDTO converts a domain Load to LoadDTO
func ToLoadDTO(l *domain.Load) *LoadDTO {
	if l == nil {
		return nil
	}

	items := make([]LoadItemDTO, 0, len(l.Items))
	for _, item := range l.Items {
		items = append(items, LoadItemDTO{
			ItemID:       item.ItemID,
			GrossWeight:  item.GrossWeight,
			Width:        item.Width,
			Height:       item.Height,
			Length:       item.Length,
			Volume:       item.Volume,
			Lademetre:    item.Lademetre,
			PieceCount:   item.PieceCount,
			PackageCount: item.PackageCount,
			Hazardous:    item.Hazardous,
			UNNumber:     item.UNNumber,
		})
	}

	return &LoadDTO{
		LoadID:           l.LoadID,
		Direction:        string(l.Direction),
		CargoDescription: l.CargoDescription,
		Status:           l.Status,
		Reference:        l.Reference,
		Items:            items,
		UpdatedAt:        l.UpdatedAt,
	}
}

// ToLoadDTOs converts a slice of loads, never returning nil
func ToLoadDTOs(loads []*domain.Load) []*LoadDTO {
	dtos := make([]*LoadDTO, 0, len(loads))
	for _, l := range loads {
		if l != nil {
			dtos = append(dtos, ToLoadDTO(l))
		}
	}
	return dtos
}

// ToDispositionViewDTO converts a domain view, keeping the capacity the view
// computed for each position
func ToDispositionViewDTO(view *domain.DispositionView) *DispositionViewDTO {
	dto := &DispositionViewDTO{
		Direction:       string(view.Direction),
		DraftPositions:  make([]*PositionDTO, 0, len(view.DraftPositions)),
		ActivePositions: make([]*PositionDTO, 0, len(view.ActivePositions)),
		UnassignedLoads: ToLoadDTOs(view.UnassignedLoads),
	}
	for _, pw := range view.DraftPositions {
		dto.DraftPositions = append(dto.DraftPositions, toPositionDTO(pw.Position, pw.Loads, pw.Capacity))
	}
	for _, pw := range view.ActivePositions {
		dto.ActivePositions = append(dto.ActivePositions, toPositionDTO(pw.Position, pw.Loads, pw.Capacity))
	}
	return dto
}

// ToLoadItems converts command items to domain items
func ToLoadItems(inputs []LoadItemInput) []domain.LoadItem {
	items := make([]domain.LoadItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.LoadItem{
			ItemID:       in.ItemID,
			GrossWeight:  in.GrossWeight,
			Width:        in.Width,
			Height:       in.Height,
			Length:       in.Length,
			Volume:       in.Volume,
			Lademetre:    in.Lademetre,
			PieceCount:   in.PieceCount,
			PackageCount: in.PackageCount,
			Hazardous:    in.Hazardous,
			UNNumber:     in.UNNumber,
		})
	}
	return items
}
