package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wms-platform/disposition-service/internal/application"
	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	"github.com/wms-platform/disposition-service/pkg/kafka"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
)

// LoadUpserter applies load changes to the read model
type LoadUpserter interface {
	UpsertLoad(ctx context.Context, cmd application.UpsertLoadCommand) (*application.LoadDTO, error)
}

// LoadEventHandler keeps the load read model in sync with the load subsystem
type LoadEventHandler struct {
	service LoadUpserter
	logger  *logging.Logger
}

func NewLoadEventHandler(service LoadUpserter, logger *logging.Logger) *LoadEventHandler {
	return &LoadEventHandler{
		service: service,
		logger:  logger.WithComponent("load-event-handler"),
	}
}

// Register subscribes the handler to load created and updated events
func (h *LoadEventHandler) Register(consumer *kafka.Consumer, consumerGroup string, m *metrics.Metrics) {
	topic := kafka.Topics.LoadEvents
	handler := kafka.InstrumentHandler(topic, consumerGroup, m, h.Handle)
	consumer.Subscribe(topic, cloudevents.LoadCreated, handler)
	consumer.Subscribe(topic, cloudevents.LoadUpdated, handler)
}

// Handle upserts the load carried by event. Payloads the read model rejects
// are logged and acknowledged; storage failures are returned for redelivery.
func (h *LoadEventHandler) Handle(ctx context.Context, event *cloudevents.WMSCloudEvent) error {
	data, err := decodeLoadData(event)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Discarding malformed load event",
			"eventId", event.ID,
			"eventType", event.Type,
		)
		return nil
	}

	_, err = h.service.UpsertLoad(ctx, toUpsertLoadCommand(data))
	if err != nil {
		if domain.IsBusinessError(err) {
			h.logger.WithContext(ctx).WithError(err).Warn("Rejected load event",
				"eventId", event.ID,
				"loadId", data.LoadID,
			)
			return nil
		}
		return fmt.Errorf("failed to upsert load %s: %w", data.LoadID, err)
	}

	h.logger.WithContext(ctx).Debug("Applied load event",
		"eventId", event.ID,
		"eventType", event.Type,
		"loadId", data.LoadID,
	)
	return nil
}

func decodeLoadData(event *cloudevents.WMSCloudEvent) (*cloudevents.LoadData, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}

	raw, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode event data: %w", err)
	}

	var data cloudevents.LoadData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode load data: %w", err)
	}
	return &data, nil
}

func toUpsertLoadCommand(data *cloudevents.LoadData) application.UpsertLoadCommand {
	items := make([]application.LoadItemInput, 0, len(data.Items))
	for _, item := range data.Items {
		items = append(items, application.LoadItemInput{
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

	return application.UpsertLoadCommand{
		LoadID:           data.LoadID,
		Direction:        data.Direction,
		CargoDescription: data.CargoDescription,
		Status:           data.Status,
		Reference:        data.Reference,
		Items:            items,
	}
}
