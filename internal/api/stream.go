package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pefman/critsim/internal/models"
)

// ErrCancelled is returned by Stream when the server reports the run cancelled.
var ErrCancelled = errors.New("simulation cancelled")

type wsIn struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) wsURL() string {
	switch {
	case strings.HasPrefix(c.config.BaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.config.BaseURL, "https://") + "/ws"
	case strings.HasPrefix(c.config.BaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.config.BaseURL, "http://") + "/ws"
	}
	return c.config.BaseURL + "/ws"
}

// Stream runs req over the websocket endpoint and calls onProgress for every
// batch the server reports. Cancelling ctx asks the server to stop and closes
// the connection.
func (c *Client) Stream(ctx context.Context, req SimulateRequest, onProgress func(models.Progress)) (models.SimulationResult, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return models.SimulationResult{}, fmt.Errorf("ws dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(m models.WsMsg) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(m)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = write(models.WsMsg{Type: models.MsgCancel})
		_ = conn.Close()
	})
	defer stop()

	if err := write(models.WsMsg{Type: models.MsgSimulate, Data: req}); err != nil {
		return models.SimulationResult{}, fmt.Errorf("ws write: %w", err)
	}

	for {
		var in wsIn
		if err := conn.ReadJSON(&in); err != nil {
			if ctx.Err() != nil {
				return models.SimulationResult{}, ctx.Err()
			}
			return models.SimulationResult{}, fmt.Errorf("ws read: %w", err)
		}
		switch in.Type {
		case models.MsgHello:
		case models.MsgProgress:
			if onProgress == nil {
				continue
			}
			var p models.Progress
			if err := json.Unmarshal(in.Data, &p); err != nil {
				return models.SimulationResult{}, fmt.Errorf("ws progress: %w", err)
			}
			onProgress(p)
		case models.MsgResult:
			var res models.SimulationResult
			if err := json.Unmarshal(in.Data, &res); err != nil {
				return models.SimulationResult{}, fmt.Errorf("ws result: %w", err)
			}
			return res, nil
		case models.MsgWarning:
			return models.SimulationResult{}, fmt.Errorf("%w: %s", models.ErrEmptyDataset, notice(in.Data))
		case models.MsgCancelled:
			return models.SimulationResult{}, ErrCancelled
		case models.MsgError:
			return models.SimulationResult{}, &APIError{Message: notice(in.Data)}
		default:
			return models.SimulationResult{}, fmt.Errorf("ws: unexpected message type %q", in.Type)
		}
	}
}

func notice(data json.RawMessage) string {
	var n models.Notice
	_ = json.Unmarshal(data, &n)
	return n.Message
}
