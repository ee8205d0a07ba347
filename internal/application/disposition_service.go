package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
)

// Locker serializes mutations that touch the same positions or loads.
// Implementations acquire keys in a deterministic order and report
// contention with an error wrapping domain.ErrConcurrentModification.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

func positionLockKey(positionID string) string { return "position:" + positionID }
func loadLockKey(loadID string) string         { return "load:" + loadID }

// DispositionApplicationService handles disposition use cases
type DispositionApplicationService struct {
	positions domain.PositionRepository
	loads     domain.LoadRepository
	locker    Locker
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewDispositionApplicationService creates a new DispositionApplicationService.
// m may be nil.
func NewDispositionApplicationService(
	positions domain.PositionRepository,
	loads domain.LoadRepository,
	locker Locker,
	logger *logging.Logger,
	m *metrics.Metrics,
) *DispositionApplicationService {
	return &DispositionApplicationService{
		positions: positions,
		loads:     loads,
		locker:    locker,
		logger:    logger.WithComponent("disposition-service"),
		metrics:   m,
	}
}

// GetDispositionView returns drafts, confirmed positions and unassigned loads
// of one direction
func (s *DispositionApplicationService) GetDispositionView(ctx context.Context, query GetDispositionViewQuery) (*DispositionViewDTO, error) {
	direction, err := domain.ParseDirection(query.Direction)
	if err != nil {
		return nil, toAppError("get disposition view", err)
	}

	drafts, err := s.positions.FindByDirectionAndState(ctx, direction, domain.PositionStateDraft)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list draft positions", "direction", direction)
		return nil, fmt.Errorf("failed to list draft positions: %w", err)
	}

	confirmed, err := s.positions.FindByDirectionAndState(ctx, direction, domain.PositionStateConfirmed)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list confirmed positions", "direction", direction)
		return nil, fmt.Errorf("failed to list confirmed positions: %w", err)
	}

	loads, err := s.loads.FindByDirection(ctx, direction)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list loads", "direction", direction)
		return nil, fmt.Errorf("failed to list loads: %w", err)
	}

	return ToDispositionViewDTO(domain.BuildDispositionView(direction, drafts, confirmed, loads)), nil
}

// CreatePosition opens an empty draft position
func (s *DispositionApplicationService) CreatePosition(ctx context.Context, cmd CreatePositionCommand) (*PositionDTO, error) {
	positionType, err := domain.ParseDirection(cmd.Type)
	if err != nil {
		return nil, toAppError("create position", err)
	}

	position, err := domain.NewPosition(positionType, domain.PositionAttributes{
		Reference:        cmd.Reference,
		VehicleRef:       cmd.VehicleRef,
		RouteRef:         cmd.RouteRef,
		PlannedDeparture: cmd.PlannedDeparture,
		Notes:            cmd.Notes,
	})
	if err != nil {
		return nil, toAppError("create position", err)
	}

	if err := s.positions.Save(ctx, position); err != nil {
		s.logger.WithError(err).Error("Failed to create position", "positionId", position.PositionID)
		return nil, toAppError("create position", err)
	}

	s.metrics.RecordPositionCreated(string(positionType))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "position.created",
		EntityType: "position",
		EntityID:   position.PositionID,
		Action:     "created",
		Data:       map[string]any{"type": string(positionType)},
	})

	return ToPositionDTO(position, nil), nil
}

// GetPosition retrieves a position with its resolved loads
func (s *DispositionApplicationService) GetPosition(ctx context.Context, query GetPositionQuery) (*PositionDTO, error) {
	position, err := s.findPosition(ctx, query.PositionID)
	if err != nil {
		return nil, toAppError("get position", err)
	}

	loads, err := s.resolveLoads(ctx, position)
	if err != nil {
		return nil, toAppError("get position", err)
	}

	return ToPositionDTO(position, loads), nil
}

// UpdatePosition changes opaque attributes of a draft position
func (s *DispositionApplicationService) UpdatePosition(ctx context.Context, cmd UpdatePositionCommand) (*PositionDTO, error) {
	var result *PositionDTO

	err := s.locker.WithLock(ctx, []string{positionLockKey(cmd.PositionID)}, func(ctx context.Context) error {
		position, err := s.findPosition(ctx, cmd.PositionID)
		if err != nil {
			return err
		}

		if err := position.Update(domain.PositionAttributes{
			Reference:        cmd.Reference,
			VehicleRef:       cmd.VehicleRef,
			RouteRef:         cmd.RouteRef,
			PlannedDeparture: cmd.PlannedDeparture,
			Notes:            cmd.Notes,
		}); err != nil {
			return err
		}

		if len(position.GetDomainEvents()) > 0 {
			if err := s.positions.Save(ctx, position); err != nil {
				return err
			}
		}

		loads, err := s.resolveLoads(ctx, position)
		if err != nil {
			return err
		}
		result = ToPositionDTO(position, loads)
		return nil
	})
	if err != nil {
		s.logFailure(err, "Failed to update position", "positionId", cmd.PositionID)
		return nil, toAppError("update position", err)
	}

	s.logger.Info("Updated position", "positionId", cmd.PositionID)
	return result, nil
}

// DeletePosition deletes a draft position. Its loads return to the
// unassigned pool; the loads themselves are untouched.
func (s *DispositionApplicationService) DeletePosition(ctx context.Context, cmd DeletePositionCommand) error {
	var released []string

	err := s.locker.WithLock(ctx, []string{positionLockKey(cmd.PositionID)}, func(ctx context.Context) error {
		position, err := s.findPosition(ctx, cmd.PositionID)
		if err != nil {
			return err
		}
		if err := position.MarkDeleted(); err != nil {
			return err
		}
		released = position.LoadIDs
		return s.positions.Delete(ctx, position)
	})
	if err != nil {
		s.logFailure(err, "Failed to delete position", "positionId", cmd.PositionID)
		return toAppError("delete position", err)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "position.deleted",
		EntityType: "position",
		EntityID:   cmd.PositionID,
		Action:     "deleted",
		Data:       map[string]any{"releasedLoads": len(released)},
	})
	return nil
}

// AssignLoad attaches a load to a draft position and returns the position
// with freshly computed capacity
func (s *DispositionApplicationService) AssignLoad(ctx context.Context, cmd AssignLoadCommand) (*PositionDTO, error) {
	var result *PositionDTO
	keys := []string{positionLockKey(cmd.PositionID), loadLockKey(cmd.LoadID)}

	err := s.locker.WithLock(ctx, keys, func(ctx context.Context) error {
		position, err := s.findPosition(ctx, cmd.PositionID)
		if err != nil {
			return err
		}

		load, err := s.findLoad(ctx, cmd.LoadID)
		if err != nil {
			return err
		}

		var owner *domain.Position
		if !position.HasLoad(load.LoadID) {
			owner, err = s.positions.FindDraftByLoadID(ctx, load.LoadID)
			if err != nil {
				return fmt.Errorf("failed to look up load membership: %w", err)
			}
		}

		added, err := position.AssignLoad(load, owner)
		if err != nil {
			return err
		}
		if added {
			if err := s.positions.Save(ctx, position); err != nil {
				return err
			}
		}

		loads, err := s.resolveLoads(ctx, position)
		if err != nil {
			return err
		}
		result = ToPositionDTO(position, loads)
		return nil
	})

	s.metrics.RecordLoadAssignment("assign", outcome(err))
	if err != nil {
		s.logFailure(err, "Failed to assign load", "positionId", cmd.PositionID, "loadId", cmd.LoadID)
		return nil, toAppError("assign load", err)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "position.load_assigned",
		EntityType: "position",
		EntityID:   cmd.PositionID,
		Action:     "load_assigned",
		RelatedIDs: map[string]string{"loadId": cmd.LoadID},
	})
	return result, nil
}

// UnassignLoad detaches a load from a draft position
func (s *DispositionApplicationService) UnassignLoad(ctx context.Context, cmd UnassignLoadCommand) error {
	keys := []string{positionLockKey(cmd.PositionID), loadLockKey(cmd.LoadID)}

	err := s.locker.WithLock(ctx, keys, func(ctx context.Context) error {
		position, err := s.findPosition(ctx, cmd.PositionID)
		if err != nil {
			return err
		}
		if err := position.UnassignLoad(cmd.LoadID); err != nil {
			return err
		}
		return s.positions.Save(ctx, position)
	})

	s.metrics.RecordLoadAssignment("unassign", outcome(err))
	if err != nil {
		s.logFailure(err, "Failed to unassign load", "positionId", cmd.PositionID, "loadId", cmd.LoadID)
		return toAppError("unassign load", err)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "position.load_unassigned",
		EntityType: "position",
		EntityID:   cmd.PositionID,
		Action:     "load_unassigned",
		RelatedIDs: map[string]string{"loadId": cmd.LoadID},
	})
	return nil
}

// ConfirmPosition promotes a draft position to confirmed and freezes its
// capacity
func (s *DispositionApplicationService) ConfirmPosition(ctx context.Context, cmd ConfirmPositionCommand) (*PositionDTO, error) {
	result, err := s.confirm(ctx, cmd.PositionID, cmd.OperationID)
	if err != nil {
		return nil, toAppError("confirm position", err)
	}
	return result, nil
}

func (s *DispositionApplicationService) confirm(ctx context.Context, positionID, operationID string) (*PositionDTO, error) {
	var (
		result   *PositionDTO
		replayed bool
	)

	err := s.locker.WithLock(ctx, []string{positionLockKey(positionID)}, func(ctx context.Context) error {
		position, err := s.findPosition(ctx, positionID)
		if err != nil {
			return err
		}

		loads, err := s.resolveLoads(ctx, position)
		if err != nil {
			return err
		}

		replayed, err = position.ConfirmOnce(loads, operationID)
		if err != nil {
			return err
		}
		if !replayed {
			if err := s.positions.Save(ctx, position); err != nil {
				return err
			}
		}

		result = ToPositionDTO(position, loads)
		return nil
	})

	if replayed {
		s.metrics.RecordConfirmation("replayed")
		s.logger.InfoContext(ctx, "Position already confirmed by this operation", "positionId", positionID, "operationId", operationID)
		return result, nil
	}

	s.metrics.RecordConfirmation(outcome(err))
	if err != nil {
		s.logFailure(err, "Failed to confirm position", "positionId", positionID)
		return nil, err
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "position.confirmed",
		EntityType: "position",
		EntityID:   positionID,
		Action:     "confirmed",
		Data: map[string]any{
			"loadCount":   result.Capacity.LoadCount,
			"totalWeight": result.Capacity.TotalWeight,
		},
	})
	return result, nil
}

func (s *DispositionApplicationService) findPosition(ctx context.Context, positionID string) (*domain.Position, error) {
	if strings.TrimSpace(positionID) == "" {
		return nil, fmt.Errorf("%w: positionId is required", domain.ErrInvalidInput)
	}

	position, err := s.positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	if position == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, positionID)
	}
	return position, nil
}

func (s *DispositionApplicationService) findLoad(ctx context.Context, loadID string) (*domain.Load, error) {
	if strings.TrimSpace(loadID) == "" {
		return nil, fmt.Errorf("%w: loadId is required", domain.ErrInvalidInput)
	}

	load, err := s.loads.FindByID(ctx, loadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get load: %w", err)
	}
	if load == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrLoadNotFound, loadID)
	}
	return load, nil
}

// resolveLoads returns the member loads of position in membership order
func (s *DispositionApplicationService) resolveLoads(ctx context.Context, position *domain.Position) ([]*domain.Load, error) {
	if len(position.LoadIDs) == 0 {
		return nil, nil
	}

	loads, err := s.loads.FindByIDs(ctx, position.LoadIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve loads: %w", err)
	}

	byID := make(map[string]*domain.Load, len(loads))
	for _, l := range loads {
		byID[l.LoadID] = l
	}
	return domain.ResolveLoads(position, byID), nil
}

// logFailure logs rejected preconditions at warn and everything else at error
func (s *DispositionApplicationService) logFailure(err error, msg string, args ...any) {
	if domain.IsBusinessError(err) {
		s.logger.WithError(err).Warn(msg, args...)
		return
	}
	s.logger.WithError(err).Error(msg, args...)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return domain.Reason(err)
}
