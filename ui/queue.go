package ui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Queue message types, sent as {"msg": ...}.
const (
	msgSendHash         = "send_hash"
	msgSendData         = "send_data"
	msgEstimation       = "estimation"
	msgProcessStarts    = "process_starts"
	msgProcessCompleted = "process_completed"
	msgQueueFull        = "queue_full"
)

const (
	queueCapacity  = 64
	queueWriteWait = 10 * time.Second
)

// QueueMessage is a server-to-client queue event.
type QueueMessage struct {
	Msg       string           `json:"msg"`
	EventID   string           `json:"event_id,omitempty"`
	Rank      *int             `json:"rank,omitempty"`
	QueueSize *int             `json:"queue_size,omitempty"`
	Success   *bool            `json:"success,omitempty"`
	Output    *PredictResponse `json:"output,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// hashMessage is the client's reply to send_hash.
type hashMessage struct {
	SessionHash string `json:"session_hash"`
	FnIndex     int    `json:"fn_index"`
}

type job struct {
	ctx     context.Context
	p       *prediction
	started chan struct{}
	done    chan jobResult
}

type jobResult struct {
	resp *PredictResponse
	err  error
}

type queue struct {
	jobs    chan *job
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	pending int
	closed  bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (b *Blocks) startQueue() *queue {
	b.queueOnce.Do(func() {
		q := &queue{
			jobs: make(chan *job, queueCapacity),
			stop: make(chan struct{}),
		}
		workers := max(b.ConcurrencyCount, 1)
		for i := 0; i < workers; i++ {
			q.wg.Add(1)
			go b.worker(q)
		}
		b.queue = q
	})
	return b.queue
}

func (b *Blocks) worker(q *queue) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case j := <-q.jobs:
			q.mu.Lock()
			q.pending--
			q.mu.Unlock()
			close(j.started)
			resp, err := b.run(j.ctx, j.p)
			j.done <- jobResult{resp: resp, err: err}
		}
	}
}

// enqueue adds j and returns its rank (0 = next), or false when full or closed.
func (q *queue) enqueue(j *job) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, false
	}
	select {
	case q.jobs <- j:
		rank := q.pending
		q.pending++
		return rank, true
	default:
		return 0, false
	}
}

func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.stop)
	q.wg.Wait()
}

// handleQueueJoin runs one prediction over a websocket:
// send_hash -> (hash) -> send_data -> (data) -> estimation -> process_starts -> process_completed.
func (b *Blocks) handleQueueJoin(w http.ResponseWriter, r *http.Request) {
	if !b.QueueEnabled {
		http.NotFound(w, r)
		return
	}
	q := b.startQueue()
	if q == nil {
		writeError(w, http.StatusServiceUnavailable, "queue is closed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger().Warn("queue upgrade failed", "demo", b.Demo, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxPredictBody)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	eventID := uuid.NewString()
	send := func(m QueueMessage) error {
		m.EventID = eventID
		_ = conn.SetWriteDeadline(time.Now().Add(queueWriteWait))
		return conn.WriteJSON(m)
	}
	fail := func(msg string) {
		ok := false
		_ = send(QueueMessage{Msg: msgProcessCompleted, Success: &ok, Error: msg})
	}

	if err := send(QueueMessage{Msg: msgSendHash}); err != nil {
		return
	}
	var hello hashMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return
	}

	if err := send(QueueMessage{Msg: msgSendData}); err != nil {
		return
	}
	var req PredictRequest
	if err := conn.ReadJSON(&req); err != nil {
		fail("invalid data message: " + err.Error())
		return
	}
	p, err := b.parse(req.Data)
	if err != nil {
		fail(err.Error())
		return
	}

	j := &job{ctx: ctx, p: p, started: make(chan struct{}), done: make(chan jobResult, 1)}
	rank, ok := q.enqueue(j)
	if !ok {
		_ = send(QueueMessage{Msg: msgQueueFull})
		return
	}
	size := rank + 1
	if err := send(QueueMessage{Msg: msgEstimation, Rank: &rank, QueueSize: &size}); err != nil {
		return
	}

	select {
	case <-j.started:
	case <-q.stop:
		fail("queue closed")
		return
	}
	if err := send(QueueMessage{Msg: msgProcessStarts}); err != nil {
		return
	}

	res := <-j.done
	if res.err != nil {
		fail(res.err.Error())
		return
	}
	success := true
	_ = send(QueueMessage{Msg: msgProcessCompleted, Success: &success, Output: res.resp})
}
