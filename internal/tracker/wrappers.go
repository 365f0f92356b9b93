package tracker

import (
	"maps"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// with returns props extended by the wrapper's fixed fields. Fixed fields
// win over caller properties of the same name.
func with(props map[string]any, fixed map[string]any) map[string]any {
	merged := make(map[string]any, len(props)+len(fixed))
	maps.Copy(merged, props)
	maps.Copy(merged, fixed)
	return merged
}

func (t *Tracker) TrackScreenView(screen string, props map[string]any) {
	t.Track(domain.EventScreenView, with(props, map[string]any{
		domain.PropScreenName: screen,
	}), "")
}

func (t *Tracker) TrackUserAction(action, target string, props map[string]any) {
	t.Track(domain.EventUserAction, with(props, map[string]any{
		"action": action,
		"target": target,
	}), "")
}

func (t *Tracker) TrackFeatureUsage(feature string, props map[string]any) {
	t.Track(domain.EventFeatureUsage, with(props, map[string]any{
		domain.PropFeatureName: feature,
	}), "")
}

func (t *Tracker) TrackConversion(conversionType string, value float64, props map[string]any) {
	t.Track(domain.EventConversion, with(props, map[string]any{
		"conversion_type": conversionType,
		"value":           value,
	}), "")
}

func (t *Tracker) TrackError(errorType, message string, props map[string]any) {
	t.Track(domain.EventError, with(props, map[string]any{
		"error_type":    errorType,
		"error_message": message,
	}), "")
}

// TrackPerformance records a timing measurement in milliseconds
func (t *Tracker) TrackPerformance(metric string, valueMs float64, props map[string]any) {
	t.Track(domain.EventPerformance, with(props, map[string]any{
		"metric_name": metric,
		"value_ms":    valueMs,
	}), "")
}

func (t *Tracker) TrackHealthInsight(insightType string, props map[string]any) {
	t.Track(domain.EventHealthInsight, with(props, map[string]any{
		"insight_type": insightType,
	}), "")
}

func (t *Tracker) TrackCycleEvent(eventType string, props map[string]any) {
	t.Track(domain.EventCycleEvent, with(props, map[string]any{
		"cycle_event_type": eventType,
	}), "")
}
