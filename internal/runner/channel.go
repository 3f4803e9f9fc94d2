package runner

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"bencher/internal/apierrors"
	"bencher/internal/model"
)

// CompletedHandler is invoked after a job transitions to Completed, to
// store the output blob and invoke ingestion with the reported results
// (spec.md §4.5's Completed handler, continued in internal/server). Both
// steps are best-effort: a failure here never reverts the transition
// (Open Question #1).
type CompletedHandler func(ctx context.Context, jobID model.JobID, results []IterationOutput) error

// Channel serves one runner's WebSocket connections: handshake auth,
// per-runner rate limiting, and the read loop from spec.md §4.5.
type Channel struct {
	Jobs     *Jobs
	Tasks    *TimeoutTasks
	HMACKey  []byte
	Upgrader websocket.Upgrader

	HeartbeatTimeout time.Duration
	HeartbeatGrace   time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int

	OnCompleted CompletedHandler
	Log         *logrus.Entry

	mu       sync.Mutex
	limiters map[model.RunnerID]*rate.Limiter
}

func NewChannel(jobs *Jobs, tasks *TimeoutTasks, hmacKey []byte, log *logrus.Entry) *Channel {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Channel{
		Jobs:               jobs,
		Tasks:              tasks,
		HMACKey:            hmacKey,
		Upgrader:           websocket.Upgrader{},
		HeartbeatTimeout:   30 * time.Second,
		HeartbeatGrace:     10 * time.Second,
		RateLimitPerSecond: 5,
		RateLimitBurst:     10,
		Log:                log,
		limiters:           make(map[model.RunnerID]*rate.Limiter),
	}
}

func (c *Channel) limiterFor(runnerID model.RunnerID) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[runnerID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.RateLimitPerSecond), c.RateLimitBurst)
		c.limiters[runnerID] = l
	}
	return l
}

// ServeJob upgrades an authenticated runner request into the job's
// WebSocket channel and runs the read loop until the socket closes
// (spec.md §4.5 "one asynchronous task per connection").
func (c *Channel) ServeJob(w http.ResponseWriter, r *http.Request, jobID model.JobID, bearerToken string) error {
	runnerID, _, err := VerifyToken(c.HMACKey, bearerToken)
	if err != nil {
		http.Error(w, err.Error(), apierrors.KindOf(err).HTTPStatus())
		return err
	}

	if !c.limiterFor(runnerID).Allow() {
		err := apierrors.New(apierrors.KindRateLimited, "runner exceeded connection rate limit")
		http.Error(w, err.Error(), err.Kind.HTTPStatus())
		return err
	}

	conn, err := c.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return apierrors.Internal(err, "upgrading websocket connection")
	}
	defer conn.Close()

	c.Tasks.Disarm(jobID)
	c.runLoop(r.Context(), conn, jobID)
	return nil
}

// runLoop implements the deadline math from spec.md §4.5: the read
// deadline is the heartbeat timeout minus elapsed time since the last
// PROTOCOL frame; ping/pong and malformed JSON never reset it.
func (c *Channel) runLoop(ctx context.Context, conn *websocket.Conn, jobID model.JobID) {
	lastFrame := time.Now()
	conn.SetReadDeadline(lastFrame.Add(c.HeartbeatTimeout))
	conn.SetPingHandler(func(string) error {
		return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
	})

	defer func() {
		c.Tasks.Arm(jobID, c.HeartbeatTimeout, c.HeartbeatGrace)
	}()

	for {
		remaining := c.HeartbeatTimeout - time.Since(lastFrame)
		if remaining <= 0 {
			c.handleTimeout(ctx, conn, jobID)
			return
		}
		conn.SetReadDeadline(time.Now().Add(remaining))

		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Socket dropped; the deferred Arm above covers the
			// disconnect-while-non-terminal case.
			return
		}

		msg, err := parseClientMessage(raw)
		if err != nil {
			// Malformed JSON does not reset the deadline (§4.5).
			continue
		}
		switch msg.Event {
		case EventRunning, EventHeartbeat, EventCompleted, EventFailed, EventCanceled:
		default:
			// An unrecognized event is not a protocol frame either.
			continue
		}

		lastFrame = time.Now()
		closeReason, done := c.dispatch(ctx, conn, jobID, msg)
		if done {
			c.sendClose(conn, closeReason)
			return
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, conn *websocket.Conn, jobID model.JobID, msg *ClientMessage) (closeReason string, done bool) {
	var (
		outcome Outcome
		err     error
	)
	switch msg.Event {
	case EventRunning:
		outcome, err = c.Jobs.HandleRunning(ctx, jobID)
	case EventHeartbeat:
		outcome, err = c.Jobs.HandleHeartbeat(ctx, jobID, c.HeartbeatTimeout, c.HeartbeatGrace)
	case EventCompleted:
		outcome, err = c.Jobs.HandleCompletedTransition(ctx, jobID)
		if err == nil && outcome.Reply == EventAck && c.OnCompleted != nil {
			if ingestErr := c.OnCompleted(ctx, jobID, msg.Results); ingestErr != nil {
				c.Log.WithError(ingestErr).WithField("job_id", jobID).Warn("best-effort ingestion of completed job results failed")
				_ = c.Jobs.MarkIngestionFailed(ctx, jobID)
			}
		}
	case EventFailed:
		outcome, err = c.Jobs.HandleFailed(ctx, jobID)
	case EventCanceled:
		outcome, err = c.Jobs.HandleCanceled(ctx, jobID)
	default:
		// Unrecognized event: treated like malformed JSON (§4.5 implies
		// only the five named events are protocol frames).
		return "", false
	}

	if err != nil {
		c.Log.WithError(err).WithField("job_id", jobID).Warn("job channel handler failed")
		return "", false
	}

	c.reply(conn, outcome.Reply)
	return outcome.CloseReason, outcome.CloseReason != ""
}

// handleTimeout fires when the read deadline elapses with no PROTOCOL
// frame received — no explicit Heartbeat message arrived, so this goes
// through the B1/B2/S3 deadline criterion rather than HandleHeartbeat's
// ACK-on-live-connection path.
func (c *Channel) handleTimeout(ctx context.Context, conn *websocket.Conn, jobID model.JobID) {
	outcome, err := c.Jobs.HandleDeadlineTimeout(ctx, jobID, c.HeartbeatTimeout, c.HeartbeatGrace)
	if err != nil {
		c.Log.WithError(err).WithField("job_id", jobID).Warn("heartbeat-deadline timeout handling failed")
		c.sendClose(conn, "heartbeat deadline exceeded")
		return
	}
	c.reply(conn, outcome.Reply)
	reason := outcome.CloseReason
	if reason == "" {
		reason = "heartbeat deadline exceeded"
	}
	c.sendClose(conn, reason)
}

func (c *Channel) reply(conn *websocket.Conn, event ServerEvent) {
	if event == "" {
		return
	}
	raw, err := encodeServerMessage(ServerMessage{Event: event})
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Channel) sendClose(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
}
