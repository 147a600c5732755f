package chat_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"homeservices/chatcore/internal/models"
	"homeservices/chatcore/internal/realtime"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of chat.Backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) ResolveRoom(ctx context.Context, customerID, workerID string) (models.Room, error) {
	args := m.Called(ctx, customerID, workerID)
	return args.Get(0).(models.Room), args.Error(1)
}

func (m *MockBackend) Messages(ctx context.Context, roomID string) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockBackend) SendMessage(ctx context.Context, roomID, content string) (models.Message, error) {
	args := m.Called(ctx, roomID, content)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MockBackend) UploadImages(ctx context.Context, room models.Room, assets []models.ImageAsset) (models.Message, error) {
	args := m.Called(ctx, room, assets)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MockBackend) MarkRead(ctx context.Context, roomID string) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

type sentFrame struct {
	Event string
	Data  json.RawMessage
}

// fakeConn is an in-memory realtime.Conn. Push simulates server frames.
type fakeConn struct {
	tags   realtime.Tags
	events chan models.Envelope
	done   chan struct{}
	once   sync.Once

	mu        sync.Mutex
	sent      []sentFrame
	closeGate chan struct{}
}

func newFakeConn(tags realtime.Tags) *fakeConn {
	return &fakeConn{
		tags:   tags,
		events: make(chan models.Envelope, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) Events() <-chan models.Envelope { return c.events }
func (c *fakeConn) Done() <-chan struct{}          { return c.done }

func (c *fakeConn) Send(event string, data any) error {
	select {
	case <-c.done:
		return realtime.ErrClosed
	default:
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, sentFrame{Event: event, Data: raw})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	gate := c.closeGate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	c.once.Do(func() { close(c.done) })
	return nil
}

// holdClose makes Close block until the returned release func is called.
func (c *fakeConn) holdClose() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.closeGate = gate
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (c *fakeConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Push(event string, data any) {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		panic(err)
	}
	c.events <- env
}

// Sent returns the frames sent so far with the given event name.
func (c *fakeConn) Sent(event string) []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentFrame
	for _, f := range c.sent {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// fakeDialer hands out fakeConns, or fails with err.
type fakeDialer struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, tags realtime.Tags) (realtime.Conn, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn(tags)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Open returns how many handed out conns are still open.
func (d *fakeDialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if !c.Closed() {
			n++
		}
	}
	return n
}

func (d *fakeDialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}
