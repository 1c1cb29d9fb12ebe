package security

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Logger records privileged operations performed by one helper invocation.
// Every event carries the same invocation id so the audit trail of a single
// run can be correlated.
type Logger struct {
	enabled      bool
	invocationID string
	callerUID    int
	callerPID    int

	// onEvent observes every emitted event; used by tests
	onEvent func(*SecurityEvent)
}

// NewLogger creates a logger for the current process. A disabled logger
// drops all events.
func NewLogger(enabled bool) *Logger {
	return &Logger{
		enabled:      enabled,
		invocationID: uuid.NewString(),
		callerUID:    os.Getuid(),
		callerPID:    os.Getppid(),
	}
}

// InvocationID returns the id attached to every event
func (l *Logger) InvocationID() string {
	return l.invocationID
}

// severityMapping defines how a severity level maps to klog behavior
type severityMapping struct {
	logFunc func(args ...interface{})
}

// severityMap maps EventSeverity to the klog logging function
var severityMap = map[EventSeverity]severityMapping{
	SeverityInfo:     {logFunc: func(args ...interface{}) { klog.V(2).Info(args...) }},
	SeverityWarning:  {logFunc: klog.Warning},
	SeverityError:    {logFunc: klog.Error},
	SeverityCritical: {logFunc: klog.Error},
}

// LogEvent logs a security event with structured logging
func (l *Logger) LogEvent(event *SecurityEvent) {
	if l == nil || !l.enabled {
		return
	}

	event.InvocationID = l.invocationID
	event.CallerUID = l.callerUID
	event.CallerPID = l.callerPID

	if l.onEvent != nil {
		l.onEvent(event)
	}

	mapping, ok := severityMap[event.Severity]
	if !ok {
		mapping = severityMap[SeverityInfo]
	}
	mapping.logFunc(formatLogMessage(event))

	// Critical events are also emitted as JSON for easy parsing
	if event.Severity == SeverityCritical {
		if jsonBytes, err := json.Marshal(event); err == nil {
			klog.Errorf("CRITICAL_SECURITY_EVENT: %s", string(jsonBytes))
		}
	}
}

// formatLogMessage formats a security event as a structured log message
func formatLogMessage(event *SecurityEvent) string {
	msg := fmt.Sprintf("[SECURITY] category=%s type=%s severity=%s outcome=%s msg=\"%s\"",
		event.Category, event.EventType, event.Severity, event.Outcome, event.Message)

	if event.InvocationID != "" {
		msg += fmt.Sprintf(" invocation_id=%s", event.InvocationID)
	}
	msg += fmt.Sprintf(" caller_uid=%d", event.CallerUID)
	if event.CallerPID > 0 {
		msg += fmt.Sprintf(" caller_pid=%d", event.CallerPID)
	}

	if event.DevicePath != "" {
		msg += fmt.Sprintf(" device_path=%s", event.DevicePath)
	}
	if event.MountPath != "" {
		msg += fmt.Sprintf(" mount_path=%s", event.MountPath)
	}
	if event.Tier != "" {
		msg += fmt.Sprintf(" tier=%s", event.Tier)
	}

	if event.Operation != "" {
		msg += fmt.Sprintf(" operation=%s", event.Operation)
	}
	if event.Duration > 0 {
		msg += fmt.Sprintf(" duration_ms=%d", event.Duration.Milliseconds())
	}
	if event.Error != "" {
		msg += fmt.Sprintf(" error=\"%s\"", event.Error)
	}

	keys := make([]string, 0, len(event.Details))
	for key := range event.Details {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		msg += fmt.Sprintf(" %s=\"%s\"", key, event.Details[key])
	}

	msg += fmt.Sprintf(" timestamp=%s", event.Timestamp.Format("2006-01-02T15:04:05.000Z"))
	return msg
}

// OperationLogConfig defines the configuration for a logging operation
type OperationLogConfig struct {
	Operation   string
	Category    EventCategory
	SuccessType EventType
	FailureType EventType
	RequestType EventType
	SuccessSev  EventSeverity
	FailureSev  EventSeverity
	SuccessMsg  string
	FailureMsg  string
	RequestMsg  string
}

// operationConfigs defines the logging configuration for all operations
var operationConfigs = map[string]OperationLogConfig{
	"Mount":   {Operation: "mount", Category: CategoryMountOperation, SuccessType: EventMountSuccess, FailureType: EventMountFailure, RequestType: EventMountRequest, SuccessSev: SeverityInfo, FailureSev: SeverityError, SuccessMsg: "FUSE mount established", FailureMsg: "FUSE mount failed", RequestMsg: "FUSE mount requested"},
	"Unmount": {Operation: "unmount", Category: CategoryMountOperation, SuccessType: EventUnmountSuccess, FailureType: EventUnmountFailure, RequestType: EventUnmountRequest, SuccessSev: SeverityInfo, FailureSev: SeverityWarning, SuccessMsg: "FUSE mount removed", FailureMsg: "FUSE unmount failed", RequestMsg: "FUSE unmount requested"},
}

// EventField is a functional option for configuring SecurityEvent fields
type EventField func(*SecurityEvent)

// WithMountPath sets mount path
func WithMountPath(path string) EventField {
	return func(e *SecurityEvent) {
		e.MountPath = path
	}
}

// WithDevicePath sets the driver device path
func WithDevicePath(path string) EventField {
	return func(e *SecurityEvent) {
		e.DevicePath = path
	}
}

// WithTier sets the mount tier that succeeded
func WithTier(tier string) EventField {
	return func(e *SecurityEvent) {
		e.Tier = tier
	}
}

// WithDuration sets operation duration
func WithDuration(d time.Duration) EventField {
	return func(e *SecurityEvent) {
		e.Duration = d
	}
}

// WithError sets error information
func WithError(err error) EventField {
	return func(e *SecurityEvent) {
		if err != nil {
			e.Error = err.Error()
		}
	}
}

// LogOperation logs an operation using the table-driven configuration
func (l *Logger) LogOperation(config OperationLogConfig, outcome EventOutcome, fields ...EventField) {
	var eventType EventType
	var severity EventSeverity
	var message string

	switch outcome {
	case OutcomeSuccess:
		eventType = config.SuccessType
		severity = config.SuccessSev
		message = config.SuccessMsg
	case OutcomeFailure:
		eventType = config.FailureType
		severity = config.FailureSev
		message = config.FailureMsg
	default:
		eventType = config.RequestType
		severity = SeverityInfo
		message = config.RequestMsg
	}

	event := NewSecurityEvent(eventType, config.Category, severity, message)
	event.Operation = config.Operation
	event.Outcome = outcome

	for _, field := range fields {
		field(event)
	}

	l.LogEvent(event)
}

func outcomeOf(err error) EventOutcome {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// LogMountRequest logs the start of a mount invocation
func (l *Logger) LogMountRequest(devicePath, mountPath string) {
	l.LogOperation(operationConfigs["Mount"], OutcomeUnknown,
		WithDevicePath(devicePath),
		WithMountPath(mountPath))
}

// LogMount logs the result of the tiered mount
func (l *Logger) LogMount(devicePath, mountPath, tier string, err error, duration time.Duration) {
	l.LogOperation(operationConfigs["Mount"], outcomeOf(err),
		WithDevicePath(devicePath),
		WithMountPath(mountPath),
		WithTier(tier),
		WithDuration(duration),
		WithError(err))
}

// LogUnmount logs an unmount invocation
func (l *Logger) LogUnmount(mountPath string, err error, duration time.Duration) {
	l.LogOperation(operationConfigs["Unmount"], outcomeOf(err),
		WithMountPath(mountPath),
		WithDuration(duration),
		WithError(err))
}

// LogHandoff logs the descriptor transfer
func (l *Logger) LogHandoff(mountPath string, channelFD int, err error) {
	event := NewSecurityEvent(EventHandoffSuccess, CategoryDescriptorHandoff, SeverityInfo, "FUSE descriptor handed off")
	if err != nil {
		event = NewSecurityEvent(EventHandoffFailure, CategoryDescriptorHandoff, SeverityCritical,
			"FUSE descriptor handoff failed - mount will be rolled back")
	}
	event.Operation = "handoff"
	event.WithOutcome(outcomeOf(err)).
		WithMount("", mountPath).
		WithDetail("channel_fd", fmt.Sprintf("%d", channelFD)).
		WithError(err)
	l.LogEvent(event)
}

// LogRollback logs the detach performed after a failed handoff
func (l *Logger) LogRollback(mountPath string, err error) {
	severity := SeverityWarning
	message := "Mount detached after failed handoff"
	if err != nil {
		severity = SeverityCritical
		message = "Mount rollback failed - orphaned mount may remain"
	}

	event := NewSecurityEvent(EventRollback, CategoryMountOperation, severity, message).
		WithOutcome(outcomeOf(err)).
		WithMount("", mountPath).
		WithError(err)
	event.Operation = "rollback"
	l.LogEvent(event)
}

// LogRejected logs an invocation refused before any privileged action
func (l *Logger) LogRejected(eventType EventType, reason error) {
	event := NewSecurityEvent(eventType, CategoryConfigError, SeverityWarning, "Invocation rejected").
		WithOutcome(OutcomeDenied).
		WithError(reason)
	l.LogEvent(event)
}
