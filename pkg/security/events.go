package security

import "time"

// EventCategory represents the category of a security event
type EventCategory string

const (
	// CategoryMountOperation represents mount and unmount operations
	CategoryMountOperation EventCategory = "mount_operation"

	// CategoryDescriptorHandoff represents descriptor transfer to a peer
	CategoryDescriptorHandoff EventCategory = "descriptor_handoff"

	// CategoryConfigError represents rejected invocations
	CategoryConfigError EventCategory = "config_error"
)

// EventSeverity represents the severity level of a security event
type EventSeverity string

const (
	// SeverityInfo represents informational events
	SeverityInfo EventSeverity = "info"

	// SeverityWarning represents warning events
	SeverityWarning EventSeverity = "warning"

	// SeverityError represents error events
	SeverityError EventSeverity = "error"

	// SeverityCritical represents events that may leave kernel state behind
	SeverityCritical EventSeverity = "critical"
)

// EventOutcome represents the outcome of a security event
type EventOutcome string

const (
	// OutcomeSuccess indicates the operation succeeded
	OutcomeSuccess EventOutcome = "success"

	// OutcomeFailure indicates the operation failed
	OutcomeFailure EventOutcome = "failure"

	// OutcomeDenied indicates the invocation was rejected before acting
	OutcomeDenied EventOutcome = "denied"

	// OutcomeUnknown indicates the outcome is unknown
	OutcomeUnknown EventOutcome = "unknown"
)

// EventType represents specific types of security events
type EventType string

const (
	// Mount events
	EventMountRequest EventType = "mount_request"
	EventMountSuccess EventType = "mount_success"
	EventMountFailure EventType = "mount_failure"

	// Unmount events
	EventUnmountRequest EventType = "unmount_request"
	EventUnmountSuccess EventType = "unmount_success"
	EventUnmountFailure EventType = "unmount_failure"

	// Handoff events
	EventHandoffSuccess EventType = "handoff_success"
	EventHandoffFailure EventType = "handoff_failure"
	EventRollback       EventType = "mount_rollback"

	// Rejected invocations
	EventUsageError  EventType = "usage_error"
	EventConfigError EventType = "config_error"
)

// SecurityEvent represents a security-relevant event in the helper
type SecurityEvent struct {
	// Core event fields
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	Category  EventCategory `json:"category"`
	Severity  EventSeverity `json:"severity"`
	Outcome   EventOutcome  `json:"outcome"`
	Message   string        `json:"message"`

	// Identity fields
	InvocationID string `json:"invocation_id,omitempty"`
	CallerUID    int    `json:"caller_uid"`
	CallerPID    int    `json:"caller_pid,omitempty"`

	// Resource fields
	DevicePath string `json:"device_path,omitempty"`
	MountPath  string `json:"mount_path,omitempty"`
	Tier       string `json:"tier,omitempty"`

	// Operation details
	Operation string            `json:"operation,omitempty"`
	Duration  time.Duration     `json:"duration_ms,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewSecurityEvent creates a new security event with timestamp
func NewSecurityEvent(eventType EventType, category EventCategory, severity EventSeverity, message string) *SecurityEvent {
	return &SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Category:  category,
		Severity:  severity,
		Message:   message,
		Details:   make(map[string]string),
	}
}

// WithOutcome sets the outcome for the event
func (e *SecurityEvent) WithOutcome(outcome EventOutcome) *SecurityEvent {
	e.Outcome = outcome
	return e
}

// WithMount sets the device and mount point
func (e *SecurityEvent) WithMount(devicePath, mountPath string) *SecurityEvent {
	e.DevicePath = devicePath
	e.MountPath = mountPath
	return e
}

// WithError sets error information
func (e *SecurityEvent) WithError(err error) *SecurityEvent {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDetail adds a custom detail
func (e *SecurityEvent) WithDetail(key, value string) *SecurityEvent {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}
