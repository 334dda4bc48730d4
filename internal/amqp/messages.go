package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"lifeplan/internal/plans"
)

// PlanSyncMessage asks the worker to mirror or drop one plan. It carries only
// the id and version; the worker loads the plan itself.
type PlanSyncMessage struct {
	PlanID    string              `json:"plan_id"`
	Version   int64               `json:"version"`
	Operation plans.SyncOperation `json:"operation"`
	Timestamp time.Time           `json:"timestamp"`
}

// NewPlanSyncMessage creates a mirror request for a saved plan version.
func NewPlanSyncMessage(planID string, version int64) *PlanSyncMessage {
	return &PlanSyncMessage{
		PlanID:    planID,
		Version:   version,
		Operation: plans.OpSync,
		Timestamp: time.Now(),
	}
}

// NewPlanDeleteMessage creates a request to drop a deleted plan's mirror.
func NewPlanDeleteMessage(planID string) *PlanSyncMessage {
	return &PlanSyncMessage{
		PlanID:    planID,
		Operation: plans.OpDelete,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PlanSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PlanSyncMessageFromJSON decodes a message. Messages without an operation
// are treated as sync requests.
func PlanSyncMessageFromJSON(data []byte) (*PlanSyncMessage, error) {
	var msg PlanSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.PlanID) == "" {
		return nil, errors.New("message has no plan_id")
	}
	switch msg.Operation {
	case "":
		msg.Operation = plans.OpSync
	case plans.OpSync, plans.OpDelete:
	default:
		return nil, errors.New("unknown operation " + string(msg.Operation))
	}
	return &msg, nil
}
