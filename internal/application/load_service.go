package application

import (
	"context"
	"fmt"

	"github.com/wms-platform/disposition-service/internal/domain"
)

// UpsertLoad creates or replaces a load in the read model
func (s *DispositionApplicationService) UpsertLoad(ctx context.Context, cmd UpsertLoadCommand) (*LoadDTO, error) {
	direction, err := domain.ParseDirection(cmd.Direction)
	if err != nil {
		return nil, toAppError("upsert load", err)
	}

	incoming, err := domain.NewLoad(cmd.LoadID, direction, cmd.CargoDescription, cmd.Status, ToLoadItems(cmd.Items))
	if err != nil {
		return nil, toAppError("upsert load", err)
	}
	incoming.Reference = cmd.Reference

	var (
		result   *domain.Load
		previous domain.Direction
		holder   *domain.Position
	)
	err = s.locker.WithLock(ctx, []string{loadLockKey(incoming.LoadID)}, func(ctx context.Context) error {
		existing, err := s.loads.FindByID(ctx, incoming.LoadID)
		if err != nil {
			return fmt.Errorf("failed to get load: %w", err)
		}

		result = incoming
		if existing != nil {
			if existing.Direction != incoming.Direction {
				previous = existing.Direction
				if holder, err = s.positions.FindDraftByLoadID(ctx, incoming.LoadID); err != nil {
					return fmt.Errorf("failed to look up load membership: %w", err)
				}
			}
			existing.ApplyUpdate(incoming)
			result = existing
		}
		return s.loads.Save(ctx, result)
	})
	if err != nil {
		s.logFailure(err, "Failed to upsert load", "loadId", cmd.LoadID)
		return nil, toAppError("upsert load", err)
	}

	// the upstream record wins; the draft keeps the load until someone unassigns it
	if holder != nil {
		s.logger.WarnContext(ctx, "Load direction changed while held by a draft position",
			"loadId", result.LoadID,
			"positionId", holder.PositionID,
			"positionType", holder.Type,
			"from", previous,
			"to", result.Direction,
		)
	}

	s.logger.Debug("Upserted load", "loadId", result.LoadID, "direction", result.Direction, "items", len(result.Items))
	return ToLoadDTO(result), nil
}

// GetLoad retrieves a load from the read model
func (s *DispositionApplicationService) GetLoad(ctx context.Context, query GetLoadQuery) (*LoadDTO, error) {
	load, err := s.findLoad(ctx, query.LoadID)
	if err != nil {
		return nil, toAppError("get load", err)
	}
	return ToLoadDTO(load), nil
}
