package cloudevents

import (
	"time"
)

// Disposition event types (published)
const (
	PositionCreated   = "wms.disposition.position-created"
	PositionUpdated   = "wms.disposition.position-updated"
	LoadAssigned      = "wms.disposition.load-assigned"
	LoadUnassigned    = "wms.disposition.load-unassigned"
	PositionConfirmed = "wms.disposition.position-confirmed"
	PositionDeleted   = "wms.disposition.position-deleted"
)

// Load event types (consumed from the load-editing subsystem)
const (
	LoadCreated = "wms.load.created"
	LoadUpdated = "wms.load.updated"
)

const (
	SourceDisposition = "/wms/disposition-service"
	SourceLoads       = "/wms/load-service"
)

// WMSCloudEvent is a CloudEvents 1.0 envelope with platform extensions
type WMSCloudEvent struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Subject         string         `json:"subject,omitempty"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time"`
	DataContentType string         `json:"datacontenttype"`
	Data            interface{}    `json:"data"`
	Extensions      map[string]any `json:"-"`

	CorrelationID string `json:"wmscorrelationid,omitempty"`
	WorkflowID    string `json:"wmsworkflowid,omitempty"`

	// Distributed tracing extension
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// LoadItemData is a physical piece of a load as published by the load subsystem
type LoadItemData struct {
	ItemID       string  `json:"itemId"`
	GrossWeight  float64 `json:"grossWeight"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Length       float64 `json:"length"`
	Volume       float64 `json:"volume"`
	Lademetre    float64 `json:"lademetre"`
	PieceCount   int     `json:"pieceCount"`
	PackageCount int     `json:"packageCount"`
	Hazardous    bool    `json:"hazardous"`
	UNNumber     string  `json:"unNumber,omitempty"`
}

// LoadData is the payload of wms.load.created and wms.load.updated
type LoadData struct {
	LoadID           string         `json:"loadId"`
	Direction        string         `json:"direction"`
	CargoDescription string         `json:"cargoDescription"`
	Status           string         `json:"status"`
	Reference        string         `json:"reference,omitempty"`
	Items            []LoadItemData `json:"items"`
}
