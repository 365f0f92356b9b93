package dto

// TrackEventRequest represents a capture request for one event
type TrackEventRequest struct {
	EventName  string                 `json:"event_name" binding:"required,max=128"`
	UserID     string                 `json:"user_id"`
	Properties map[string]interface{} `json:"properties"`
}

// TrackEventsBulkRequest represents a bulk capture request
type TrackEventsBulkRequest struct {
	Events []TrackEventRequest `json:"events" binding:"required,min=1,max=1000,dive"`
}

// UserPropertiesRequest sets sticky user properties
type UserPropertiesRequest struct {
	Properties map[string]interface{} `json:"properties" binding:"required,min=1"`
}

// FunnelRequest represents a funnel query with comma separated ordered steps
type FunnelRequest struct {
	Steps string `form:"steps" binding:"required"`
}
