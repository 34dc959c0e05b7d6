// Package deploy starts a deployment on the control plane and follows it to
// a terminal status.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/specialistvlad/stepship/internal/deploy/status"
)

// Feed coordinates of the deployment item.
const (
	EntityDeployment = "deployment"
	FieldData        = "data"
)

// Feed opens subscriptions on the real-time status feed.
type Feed interface {
	Subscribe(ctx context.Context, entityType, id, field string) (Subscription, error)
}

// Subscription follows one item of the feed.
type Subscription interface {
	// Updates delivers every snapshot pushed by the server. The channel is
	// never closed.
	Updates() <-chan status.DeployData
	// Fetch asks the server for a fresh snapshot and returns the latest one
	// received so far. ok is false until a first snapshot arrived.
	Fetch(ctx context.Context) (data status.DeployData, ok bool, err error)
	// Close releases the subscription. Only the first call has an effect.
	Close() error
}

// decodeDeployData converts a decoded feed payload into DeployData.
func decodeDeployData(v any) (status.DeployData, error) {
	var raw []byte
	switch p := v.(type) {
	case []byte:
		raw = p
	case string:
		raw = []byte(p)
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return status.DeployData{}, err
		}
		raw = b
	}

	var d status.DeployData
	if err := json.Unmarshal(raw, &d); err != nil {
		return status.DeployData{}, fmt.Errorf("decode deployment data: %w", err)
	}
	return d, nil
}
