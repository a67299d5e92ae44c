package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/hubnspoke/pkg/mqtt"
)

const (
	stagesTopic    = "fl/hub/%s/stages"
	lastStageTopic = "fl/hub/%s/nodes/%s/stage"
	// hubTopicNode stands in for the node segment of hub-wide events.
	hubTopicNode = "hub"
)

// Event is published on every stage transition.
type Event struct {
	ModelID string    `json:"model_id"`
	Node    string    `json:"node,omitempty"`
	Round   int       `json:"round"`
	Stage   Stage     `json:"stage"`
	Outcome string    `json:"outcome,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error {
	return nil
}

type mqttNotifier struct {
	pub     mqtt.Publisher
	modelID string
	topic   string
}

// NewMQTTNotifier publishes events as JSON on fl/hub/<modelID>/stages and
// keeps the latest event of every node retained on
// fl/hub/<modelID>/nodes/<node>/stage.
func NewMQTTNotifier(pub mqtt.Publisher, modelID string) Notifier {
	return &mqttNotifier{
		pub:     pub,
		modelID: modelID,
		topic:   StagesTopic(modelID),
	}
}

func StagesTopic(modelID string) string {
	return fmt.Sprintf(stagesTopic, modelID)
}

// LastStageTopic carries the retained latest event of node. Hub-wide events
// such as uploads use the "hub" segment.
func LastStageTopic(modelID, node string) string {
	if node == "" {
		node = hubTopicNode
	}

	return fmt.Sprintf(lastStageTopic, modelID, node)
}

func (n *mqttNotifier) Notify(ctx context.Context, ev Event) error {
	return errors.Join(
		n.pub.Publish(ctx, n.topic, ev),
		n.pub.PublishRetained(ctx, LastStageTopic(n.modelID, ev.Node), ev),
	)
}
