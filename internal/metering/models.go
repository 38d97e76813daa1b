package metering

import (
	"strings"
	"time"
)

// defaultLookback is how far back a usage query reaches when the caller does
// not supply a start time.
const defaultLookback = 24 * time.Hour

// DefaultGroupingInterval is the grouping applied to usage queries that do not
// specify one.
const DefaultGroupingInterval = "DAY"

// CancelFilterType is the only filtering-rule type the relay creates: it
// excludes previously ingested events matching the given properties.
const CancelFilterType = "by_property_filter_out"

// ValidationError reports required fields missing from an inbound payload.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "required fields missing: " + strings.Join(e.Missing, ", ")
}

// Meter is a metric definition registered with the upstream platform. ID is
// assigned upstream on creation and required for updates.
type Meter struct {
	ID           string `json:"id,omitempty"`
	Label        string `json:"label"`
	MeterAPIName string `json:"meterApiName"`
	MeterType    string `json:"meterType"`
}

// Validate checks the fields required for create and update operations.
func (m *Meter) Validate() error {
	var missing []string
	if m.Label == "" {
		missing = append(missing, "label")
	}
	if m.MeterAPIName == "" {
		missing = append(missing, "meterApiName")
	}
	if m.MeterType == "" {
		missing = append(missing, "meterType")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// TimeRange bounds a usage query in epoch seconds. A nil end means "up to now"
// and is omitted from the serialized form.
type TimeRange struct {
	StartTimeInSeconds int64  `json:"startTimeInSeconds"`
	EndTimeInSeconds   *int64 `json:"endTimeInSeconds,omitempty"`
}

// UsageQuery is the payload sent to the upstream usage endpoint.
type UsageQuery struct {
	MeterAPIName         string    `json:"meterApiName"`
	TimeRange            TimeRange `json:"timeRange"`
	TimeGroupingInterval string    `json:"timeGroupingInterval"`
	MinimizeFresh        *bool     `json:"minimizeFresh,omitempty"`
}

// NewUsageQuery builds a usage query, filling in the defaults: a start time of
// now minus 24h, an open end, and DAY grouping.
func NewUsageQuery(meterAPIName string, start, end *int64, interval string, now time.Time) UsageQuery {
	q := UsageQuery{
		MeterAPIName:         meterAPIName,
		TimeGroupingInterval: interval,
	}
	if q.TimeGroupingInterval == "" {
		q.TimeGroupingInterval = DefaultGroupingInterval
	}
	if start != nil {
		q.TimeRange.StartTimeInSeconds = *start
	} else {
		q.TimeRange.StartTimeInSeconds = now.Add(-defaultLookback).Unix()
	}
	q.TimeRange.EndTimeInSeconds = end
	return q
}

// IngestEvent is a single measurement submitted for aggregation. The timestamp
// is always stamped at ingestion, never taken from the caller.
type IngestEvent struct {
	CustomerID        string                 `json:"customerId"`
	MeterAPIName      string                 `json:"meterApiName"`
	MeterValue        float64                `json:"meterValue"`
	MeterTimeInMillis int64                  `json:"meterTimeInMillis"`
	Dimensions        map[string]interface{} `json:"dimensions"`
}

// identifyingFields are excluded from an ingest event's free-form dimensions.
var identifyingFields = map[string]bool{
	"tenantId":     true,
	"meterApiName": true,
	"meterValue":   true,
}

// NewIngestEvent builds an IngestEvent from a raw event detail. tenantId,
// meterApiName and meterValue are required; every other field becomes a
// dimension.
func NewIngestEvent(detail map[string]interface{}, now time.Time) (IngestEvent, error) {
	var missing []string

	tenantID, _ := detail["tenantId"].(string)
	if tenantID == "" {
		missing = append(missing, "tenantId")
	}
	apiName, _ := detail["meterApiName"].(string)
	if apiName == "" {
		missing = append(missing, "meterApiName")
	}
	value, ok := detail["meterValue"].(float64)
	if !ok {
		missing = append(missing, "meterValue")
	}

	if len(missing) > 0 {
		return IngestEvent{}, &ValidationError{Missing: missing}
	}

	dimensions := make(map[string]interface{})
	for k, v := range detail {
		if !identifyingFields[k] {
			dimensions[k] = v
		}
	}

	return IngestEvent{
		CustomerID:        tenantID,
		MeterAPIName:      apiName,
		MeterValue:        value,
		MeterTimeInMillis: now.UnixMilli(),
		Dimensions:        dimensions,
	}, nil
}

// CancelFilter is the payload for a server-side filtering rule that cancels
// previously ingested usage.
type CancelFilter struct {
	MeterAPIName       string     `json:"meterApiName"`
	ID                 string     `json:"id"`
	IngestionTimeRange *TimeRange `json:"ingestionTimeRange"`
	Type               string     `json:"type"`
}

// Validate checks the fields required for a cancel-usage request and forces
// the rule type, overriding anything the caller supplied.
func (f *CancelFilter) Validate() error {
	var missing []string
	if f.MeterAPIName == "" {
		missing = append(missing, "meterApiName")
	}
	if f.ID == "" {
		missing = append(missing, "id")
	}
	if f.IngestionTimeRange == nil {
		missing = append(missing, "ingestionTimeRange")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	f.Type = CancelFilterType
	return nil
}
