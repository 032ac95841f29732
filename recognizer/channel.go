package recognizer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"glance/log"
)

const recvDrainTimeout = 2 * time.Second

// ChannelStats counts channel traffic for diagnostics.
type ChannelStats struct {
	ConnectDur   time.Duration
	SentMessages int
	SentBytes    uint64
	RecvMessages int
	RecvResults  int
}

// Channel is the persistent, bidirectional connection to the recognition
// backend. The dial happens in the background so session setup never
// blocks on the network; sends before the connection is up fail softly.
// Losing the channel is non-fatal to local recording: results simply stop
// updating.
type Channel struct {
	url     string
	results *Results

	ctx    context.Context
	cancel context.CancelFunc

	conn      *websocket.Conn
	connected chan struct{} // closed when the dial finishes (or fails)
	recvDone  chan struct{}

	sendMu sync.Mutex

	mu      sync.Mutex
	err     error
	errOnce sync.Once
	closing bool
	stats   ChannelStats

	closeOnce sync.Once
}

// Dial starts connecting in the background and returns immediately.
// Inbound region_text_result messages update the given Results store.
func Dial(ctx context.Context, url string, results *Results) *Channel {
	cctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		url:       url,
		results:   results,
		ctx:       cctx,
		cancel:    cancel,
		connected: make(chan struct{}),
		recvDone:  make(chan struct{}),
	}

	go func() {
		connectStart := time.Now()
		conn, _, err := websocket.Dial(c.ctx, c.url, nil)
		c.mu.Lock()
		c.stats.ConnectDur = time.Since(connectStart)
		c.mu.Unlock()

		if err != nil {
			c.setErr(fmt.Errorf("dialing result channel: %w", err))
			close(c.connected)
			close(c.recvDone)
			return
		}
		conn.SetReadLimit(1 << 20)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		close(c.connected)
		go c.runReceiver(conn)
	}()

	return c
}

// Ready is closed once the dial has finished, successfully or not. Check
// Err afterwards to tell which.
func (c *Channel) Ready() <-chan struct{} { return c.connected }

func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Channel) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Channel) StartStream(recordingUUID string) error {
	return c.send(eventStartStream, startStreamData{RecordingUUID: recordingUUID})
}

// SendRegionImage ships one cropped region as a JPEG data URL. Failures
// are per-message: the caller logs and moves on.
func (c *Channel) SendRegionImage(regionIndex int, jpeg []byte, timestamp float64) error {
	return c.send(eventRegionImage, regionImageData{
		RegionIndex: regionIndex,
		Image:       "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
		Timestamp:   timestamp,
	})
}

func (c *Channel) StopStream() error {
	return c.send(eventStopStream, nil)
}

func (c *Channel) send(event string, data any) error {
	select {
	case <-c.connected:
	default:
		return fmt.Errorf("result channel not connected yet")
	}
	if err := c.Err(); err != nil {
		return err
	}

	env := envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", event, err)
		}
		env.Data = raw
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.Write(c.ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}

	c.mu.Lock()
	c.stats.SentMessages++
	c.stats.SentBytes += uint64(len(payload))
	c.mu.Unlock()
	return nil
}

func (c *Channel) runReceiver(conn *websocket.Conn) {
	defer close(c.recvDone)
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()
			if closing {
				return
			}
			c.setErr(err)
			log.Warnf("result channel lost: %v", err)
			return
		}

		c.mu.Lock()
		c.stats.RecvMessages++
		c.mu.Unlock()

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warnf("result channel: bad message: %v", err)
			continue
		}
		c.handle(env)
	}
}

func (c *Channel) handle(env envelope) {
	switch env.Event {
	case eventRegionResult:
		var res Result
		if err := json.Unmarshal(env.Data, &res); err != nil {
			log.Warnf("result channel: bad region_text_result: %v", err)
			return
		}
		c.results.Put(res)
		log.RegionText(res.RegionIndex, res.Text)
		c.mu.Lock()
		c.stats.RecvResults++
		c.mu.Unlock()
	case eventConnected, eventStreamStarted, eventStreamStopped:
		log.Infof("result channel: %s", env.Event)
	case eventError:
		var se serverErrorData
		json.Unmarshal(env.Data, &se)
		log.Warnf("result channel: server error: %s", se.Message)
	default:
		log.Warnf("result channel: unknown event %q", env.Event)
	}
}

func (c *Channel) setErr(err error) {
	if err == nil {
		return
	}
	c.errOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	})
}

// Close tears the channel down. Idempotent; safe on a channel that never
// connected.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "")
		}
		c.cancel()

		select {
		case <-c.recvDone:
		case <-time.After(recvDrainTimeout):
			log.Warn("result channel receiver drain timeout")
		}
	})
	return nil
}
