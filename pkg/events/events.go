// Package events defines the events published on the bus by the registry,
// the engine and the health monitor.
package events

import (
	"strconv"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic every event is published on. Events of one
// entity share a partition key, so they are consumed in publish order.
const Topic = "conduit.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"
const EventIDMetadataKey = "event_id"
const EventVersionMetadataKey = "event_version"

const (
	IntegrationCreatedEvent  EventType = "integration.created"
	IntegrationUpdatedEvent  EventType = "integration.updated"
	IntegrationDeletedEvent  EventType = "integration.deleted"
	IntegrationDeployedEvent EventType = "integration.deployed"

	WorkflowSavedEvent   EventType = "workflow.saved"
	WorkflowDeletedEvent EventType = "workflow.deleted"

	VersionCommittedEvent EventType = "version.committed"

	RunStartedEvent   EventType = "run.started"
	RunFinishedEvent  EventType = "run.finished"
	NodeFinishedEvent EventType = "node.finished"

	HealthChangedEvent EventType = "health.changed"

	AlertRaisedEvent       EventType = "alert.raised"
	AlertEscalatedEvent    EventType = "alert.escalated"
	AlertResolvedEvent     EventType = "alert.resolved"
	AlertAcknowledgedEvent EventType = "alert.acknowledged"

	NotificationRequestedEvent EventType = "notification.requested"
)

// Event is anything that can travel on the bus.
type Event interface {
	GetType() EventType
	GetBase() BaseEvent
}

// BaseEvent carries the identity of an event. EntityID is the partition key
// and ID plus Version identify a delivery for deduplication.
type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	EntityID  string         `json:"entity_id"`
	Version   int64          `json:"version"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (b BaseEvent) GetBase() BaseEvent {
	return b
}

// DedupKey identifies one logical delivery of the event.
func (b BaseEvent) DedupKey() string {
	return b.ID + ":" + strconv.FormatInt(b.Version, 10)
}

func NewBaseEvent(eventType EventType, entityID string, version int64) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		EntityID:  entityID,
		Version:   version,
	}
}

// Integration events

type IntegrationChanged struct {
	BaseEvent

	Integration *models.Integration `json:"integration,omitempty"`
	Author      string              `json:"author,omitempty"`
}

func (e IntegrationChanged) GetType() EventType {
	return e.Type
}

// Workflow events

type WorkflowChanged struct {
	BaseEvent

	Workflow *models.Workflow `json:"workflow,omitempty"`
	Author   string           `json:"author,omitempty"`
}

func (e WorkflowChanged) GetType() EventType {
	return e.Type
}

type VersionCommitted struct {
	BaseEvent

	Kind       models.EntityKind `json:"kind"`
	Number     int64             `json:"number"`
	Author     string            `json:"author"`
	Note       string            `json:"note,omitempty"`
	RestoredOf int64             `json:"restored_of,omitempty"`
}

func (e VersionCommitted) GetType() EventType {
	return VersionCommittedEvent
}

// Run events

type RunStarted struct {
	BaseEvent

	RunID       string         `json:"run_id"`
	WorkflowID  string         `json:"workflow_id"`
	TriggerType string         `json:"trigger_type"`
	Trigger     map[string]any `json:"trigger,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	RunID      string           `json:"run_id"`
	WorkflowID string           `json:"workflow_id"`
	Status     models.RunStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
	NodesRun   int              `json:"nodes_run"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type NodeFinished struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	WorkflowID string            `json:"workflow_id"`
	NodeID     string            `json:"node_id"`
	NodeType   string            `json:"node_type"`
	Status     models.NodeStatus `json:"status"`
	Ports      []string          `json:"ports,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}

// Health events

type HealthChanged struct {
	BaseEvent

	Previous models.HealthState    `json:"previous"`
	Snapshot models.HealthSnapshot `json:"snapshot"`
}

func (e HealthChanged) GetType() EventType {
	return HealthChangedEvent
}

type AlertChanged struct {
	BaseEvent

	Alert models.Alert `json:"alert"`
}

func (e AlertChanged) GetType() EventType {
	return e.Type
}

type NotificationRequested struct {
	BaseEvent

	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	NodeID     string         `json:"node_id"`
	Channel    string         `json:"channel"`
	Subject    string         `json:"subject,omitempty"`
	Message    string         `json:"message"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}

// New returns an empty event of the given type, ready to be decoded into.
func New(eventType EventType) (Event, bool) {
	switch eventType {
	case IntegrationCreatedEvent, IntegrationUpdatedEvent, IntegrationDeletedEvent, IntegrationDeployedEvent:
		return &IntegrationChanged{}, true
	case WorkflowSavedEvent, WorkflowDeletedEvent:
		return &WorkflowChanged{}, true
	case VersionCommittedEvent:
		return &VersionCommitted{}, true
	case RunStartedEvent:
		return &RunStarted{}, true
	case RunFinishedEvent:
		return &RunFinished{}, true
	case NodeFinishedEvent:
		return &NodeFinished{}, true
	case HealthChangedEvent:
		return &HealthChanged{}, true
	case AlertRaisedEvent, AlertEscalatedEvent, AlertResolvedEvent, AlertAcknowledgedEvent:
		return &AlertChanged{}, true
	case NotificationRequestedEvent:
		return &NotificationRequested{}, true
	default:
		return nil, false
	}
}
