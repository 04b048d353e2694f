package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pefman/critsim/internal/models"
	"github.com/pefman/critsim/internal/session"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const writeWait = 10 * time.Second

type clientIn struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wsJob is a validated run waiting for the connection's runner.
type wsJob struct {
	ctx  context.Context
	req  models.SimulationRequest
	in   simulateReq
	sess *session.Session
}

type wsClient struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex

	// cancelRun is set from the moment a run is accepted until the runner
	// finishes it; non-nil means busy.
	runMu     sync.Mutex
	cancelRun context.CancelFunc
}

func (c *wsClient) send(m models.WsMsg) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(m)
}

func (c *wsClient) notice(typ, msg string) error {
	return c.send(models.WsMsg{Type: typ, Data: models.Notice{Message: msg}})
}

// begin claims the connection for a new run. It returns false while another
// run is accepted but not yet finished.
func (c *wsClient) begin(parent context.Context) (context.Context, bool) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancelRun != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancelRun = cancel
	return ctx, true
}

// finish releases the connection after a run.
func (c *wsClient) finish() {
	c.runMu.Lock()
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.runMu.Unlock()
}

// cancel stops the current run, if any. It reports whether one was running.
func (c *wsClient) cancel() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancelRun == nil {
		return false
	}
	c.cancelRun()
	return true
}

// GET /ws
//
// One run at a time per connection. Progress is pushed after every batch and
// closing the socket cancels the run before its next batch.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws: upgrade failed", "err", err, "from", r.RemoteAddr)
		return
	}
	c := &wsClient{id: fmt.Sprintf("c_%d", time.Now().UnixNano()), conn: conn}
	log := s.log.With("client", c.id)
	log.Info("ws: connect", "from", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	jobs := make(chan wsJob, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.wsRunner(ctx, c, jobs)
	}()

	defer func() {
		cancel()
		close(jobs)
		wg.Wait()
		_ = conn.Close()
		log.Info("ws: closed")
	}()

	_ = c.send(models.WsMsg{Type: models.MsgHello, Data: map[string]string{"id": c.id}})

	for {
		var in clientIn
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws: read error", "err", err)
			}
			return
		}
		log.Debug("ws: recv", "type", in.Type)

		switch in.Type {
		case models.MsgSimulate:
			job, err := s.parseJob(in.Data)
			if err != nil {
				s.wsRunError(c, err)
				continue
			}
			runCtx, ok := c.begin(ctx)
			if !ok {
				_ = c.notice(models.MsgError, "a simulation is already running")
				continue
			}
			job.ctx = runCtx
			// at most one job is in flight, so the buffered send never blocks
			jobs <- job
		case models.MsgCancel:
			if !c.cancel() {
				_ = c.notice(models.MsgWarning, "nothing to cancel")
			}
		default:
			_ = c.notice(models.MsgError, "unknown message type "+in.Type)
		}
	}
}

func (s *Server) parseJob(data json.RawMessage) (wsJob, error) {
	var in simulateReq
	if len(data) == 0 {
		return wsJob{}, errors.New("missing simulate data")
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return wsJob{}, errors.New("invalid JSON")
	}
	job := wsJob{in: in}
	patterns := in.Patterns
	if in.SessionID != "" {
		sess, ok := s.sessions.Get(in.SessionID)
		if !ok {
			return wsJob{}, fmt.Errorf("unknown session %s", in.SessionID)
		}
		sess.Touch()
		job.sess = sess
		patterns = sess.Patterns()
	}
	req, err := s.request(in, patterns)
	if err != nil {
		return wsJob{}, err
	}
	job.req = req
	return job, nil
}

func (s *Server) wsRunError(c *wsClient, err error) {
	if errors.Is(err, models.ErrEmptyDataset) {
		s.log.Warn("simulation refused", "client", c.id, "reason", err)
		_ = c.notice(models.MsgWarning, "add at least one attack pattern")
		return
	}
	_ = c.notice(models.MsgError, err.Error())
}

func (s *Server) wsRunner(ctx context.Context, c *wsClient, jobs <-chan wsJob) {
	for job := range jobs {
		progress := func(p models.Progress) {
			if err := c.send(models.WsMsg{Type: models.MsgProgress, Data: p}); err != nil {
				c.cancel()
			}
		}
		res, err := s.run(job.ctx, job.req, s.options(job.in, progress))

		// released before the reply so the client may start the next run at once
		c.finish()

		switch {
		case err == nil:
			if job.sess != nil {
				job.sess.SetLastResult(res)
			}
			_ = c.send(models.WsMsg{Type: models.MsgResult, Data: res})
		case errors.Is(err, context.Canceled):
			if ctx.Err() == nil {
				_ = c.notice(models.MsgCancelled, "simulation cancelled")
			}
		default:
			s.wsRunError(c, err)
		}
	}
}
