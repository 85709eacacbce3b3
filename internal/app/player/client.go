// Package player owns the lifecycle of one mpv subprocess per room and
// its JSON-IPC control channel.
package player

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Errors
var (
	ErrConnection     = errors.New("player connection failed")
	ErrNotConnected   = errors.New("player not connected")
	ErrRequestTimeout = errors.New("player request timed out")
	ErrShutdown       = errors.New("player shut down")
)

// observedProperties are registered with mpv right after connecting so
// later status reads return populated values.
var observedProperties = []string{
	"pause", "media-title", "duration", "time-pos", "volume", "path", "idle-active",
}

// Config holds player subprocess configuration.
type Config struct {
	Binary          string
	SocketDir       string
	ConnectRetries  int
	ConnectInterval time.Duration
	RequestTimeout  time.Duration
	HealthInterval  time.Duration
	HealthTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "mpv"
	}
	if c.SocketDir == "" {
		c.SocketDir = os.TempDir()
	}
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 20
	}
	if c.ConnectInterval <= 0 {
		c.ConnectInterval = 250 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 3 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 15 * time.Second
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 2 * time.Second
	}
	return c
}

// PlaybackInfo is a degraded-tolerant snapshot of the player state.
// Each field falls back to its zero value when the underlying property
// read fails.
type PlaybackInfo struct {
	Playing  bool    `json:"playing"`
	Paused   bool    `json:"paused"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Position float64 `json:"position"`
	Volume   float64 `json:"volume"`
	Path     string  `json:"path"`
}

// ipcRequest is one outbound command line.
type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id"`
}

// ipcMessage is one inbound line: a response when RequestID is set,
// otherwise a protocol event.
type ipcMessage struct {
	RequestID *int            `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Event     string          `json:"event,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

type response struct {
	data json.RawMessage
	err  error
}

// Client controls one mpv subprocess over its IPC socket. A client may
// be restarted after a crash with another Start; Destroy ends its life
// for good.
type Client struct {
	roomID      string
	audioDevice string
	cfg         Config
	log         zerolog.Logger

	mu           sync.Mutex
	cmd          *exec.Cmd
	conn         net.Conn
	connected    bool
	destroyed    bool
	nextID       int
	pending      map[int]chan response
	targetVolume int
	loopDone     chan struct{}

	events chan Event
}

// NewClient creates a client for the room bound to the given audio
// device. Nothing is spawned until Start.
func NewClient(roomID, audioDevice string, cfg Config, log zerolog.Logger) *Client {
	return &Client{
		roomID:       roomID,
		audioDevice:  audioDevice,
		cfg:          cfg.withDefaults(),
		log:          log,
		pending:      make(map[int]chan response),
		targetVolume: 50,
		events:       make(chan Event, 16),
	}
}

// Events returns the notification channel. It is closed by Destroy.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether the subprocess socket is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Start spawns the subprocess in idle audio mode and connects to its
// socket, retrying on a fixed interval to absorb the startup race.
func (c *Client) Start(ctx context.Context, volume *int) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrShutdown
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if volume != nil {
		c.targetVolume = *volume
	}
	vol := c.targetVolume
	c.mu.Unlock()

	if err := os.MkdirAll(c.cfg.SocketDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create socket dir")
	}
	socketPath := filepath.Join(c.cfg.SocketDir, fmt.Sprintf("mpv-%s.sock", c.roomID))
	_ = os.Remove(socketPath)

	args := []string{
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--input-ipc-server=" + socketPath,
		fmt.Sprintf("--volume=%d", vol),
	}
	if c.audioDevice != "" {
		args = append(args, "--audio-device="+c.audioDevice)
	}

	cmd := exec.Command(c.cfg.Binary, args...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(ErrConnection, "failed to spawn %s: %v", c.cfg.Binary, err)
	}
	go func() { _ = cmd.Wait() }()

	conn, err := c.dialWithRetry(ctx, socketPath)
	if err != nil {
		_ = cmd.Process.Kill()
		return err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		_ = conn.Close()
		_ = cmd.Process.Kill()
		return ErrShutdown
	}
	c.cmd = cmd
	c.conn = conn
	c.connected = true
	c.pending = make(map[int]chan response)
	c.loopDone = make(chan struct{})
	done := c.loopDone
	c.mu.Unlock()

	go c.readLoop(conn, done)
	go c.healthLoop(done)

	for i, prop := range observedProperties {
		if _, err := c.request(ctx, "observe_property", i+1, prop); err != nil {
			c.log.Warn().Msgf("player: observe %s failed: %v", prop, err)
		}
	}

	c.log.Info().Msgf("player: started %s (socket %s)", c.cfg.Binary, socketPath)
	return nil
}

func (c *Client) dialWithRetry(ctx context.Context, socketPath string) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.ConnectRetries; attempt++ {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ErrConnection, ctx.Err().Error())
		case <-time.After(c.cfg.ConnectInterval):
		}
	}
	return nil, errors.Wrapf(ErrConnection, "socket not reachable after %d attempts: %v",
		c.cfg.ConnectRetries, lastErr)
}

// Play issues a replace-load for the URL, optionally starting at an
// offset when resuming an interrupted track. Pause state and volume do
// not reliably survive a replace-load, so both are re-applied.
func (c *Client) Play(ctx context.Context, url string, startPos int) error {
	args := []any{"loadfile", url, "replace"}
	if startPos > 0 {
		args = append(args, fmt.Sprintf("start=%d", startPos))
	}
	if _, err := c.request(ctx, args...); err != nil {
		return errors.Wrap(err, "loadfile failed")
	}

	if _, err := c.request(ctx, "set_property", "pause", false); err != nil {
		return errors.Wrap(err, "unpause failed")
	}

	c.mu.Lock()
	vol := c.targetVolume
	c.mu.Unlock()
	if _, err := c.request(ctx, "set_property", "volume", vol); err != nil {
		c.log.Warn().Msgf("player: volume re-apply failed: %v", err)
	}
	return nil
}

// Pause suspends playback.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.request(ctx, "set_property", "pause", true)
	return err
}

// Resume continues paused playback.
func (c *Client) Resume(ctx context.Context) error {
	_, err := c.request(ctx, "set_property", "pause", false)
	return err
}

// Stop unloads the current file, returning the subprocess to idle.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.request(ctx, "stop")
	return err
}

// Seek jumps to an absolute position in seconds.
func (c *Client) Seek(ctx context.Context, seconds float64) error {
	_, err := c.request(ctx, "seek", seconds, "absolute")
	return err
}

// SetVolume remembers the target volume and applies it best-effort.
// When disconnected the value is picked up by the next Start/Play.
func (c *Client) SetVolume(ctx context.Context, volume int) error {
	c.mu.Lock()
	c.targetVolume = volume
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	if _, err := c.request(ctx, "set_property", "volume", volume); err != nil {
		return errors.Wrap(err, "set volume failed")
	}
	return nil
}

// Position returns the current playback offset in seconds, zero when
// unknown.
func (c *Client) Position(ctx context.Context) float64 {
	return c.propertyFloat(ctx, "time-pos", 0)
}

// PlaybackInfo queries all observed properties concurrently. Each
// property degrades to its default independently, so one failing read
// never fails the snapshot.
func (c *Client) PlaybackInfo(ctx context.Context) PlaybackInfo {
	var info PlaybackInfo
	var wg sync.WaitGroup
	var idle = true

	wg.Add(7)
	go func() { defer wg.Done(); info.Paused = c.propertyBool(ctx, "pause", false) }()
	go func() { defer wg.Done(); info.Title = c.propertyString(ctx, "media-title", "") }()
	go func() { defer wg.Done(); info.Duration = c.propertyFloat(ctx, "duration", 0) }()
	go func() { defer wg.Done(); info.Position = c.propertyFloat(ctx, "time-pos", 0) }()
	go func() { defer wg.Done(); info.Volume = c.propertyFloat(ctx, "volume", 0) }()
	go func() { defer wg.Done(); info.Path = c.propertyString(ctx, "path", "") }()
	go func() { defer wg.Done(); idle = c.propertyBool(ctx, "idle-active", true) }()
	wg.Wait()

	info.Playing = !idle && info.Path != ""
	return info
}

// Destroy terminates the subprocess, rejects in-flight requests, and
// closes the event channel.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	conn := c.conn
	cmd := c.cmd
	done := c.loopDone
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	close(c.events)
	c.log.Info().Msg("player: destroyed")
}

// request writes one correlated command line and waits for its
// response. Failures reject only this request, never the client.
func (c *Client) request(ctx context.Context, command ...any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan response, 1)
	c.pending[id] = ch
	conn := c.conn

	payload, err := json.Marshal(ipcRequest{Command: command, RequestID: id})
	if err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, errors.Wrap(err, "failed to encode command")
	}
	_, err = conn.Write(append(payload, '\n'))
	c.mu.Unlock()
	if err != nil {
		c.dropPending(id)
		return nil, errors.Wrapf(ErrConnection, "write failed: %v", err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp.data, resp.err
	case <-timer.C:
		c.dropPending(id)
		return nil, errors.Wrapf(ErrRequestTimeout, "command %v", command[0])
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	}
}

func (c *Client) dropPending(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop consumes newline-delimited JSON from the socket, routing
// responses to their pending request and translating events. It runs
// until the socket closes.
func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg ipcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.log.Debug().Msgf("player: dropping malformed line: %v", err)
			continue
		}

		switch {
		case msg.RequestID != nil:
			c.deliver(*msg.RequestID, msg)
		case msg.Event != "":
			c.handleEvent(msg)
		}
	}

	// Socket gone: either Destroy closed it or the subprocess died.
	c.mu.Lock()
	c.connected = false
	for id, ch := range c.pending {
		ch <- response{err: ErrShutdown}
		delete(c.pending, id)
	}
	deliberate := c.destroyed
	cmd := c.cmd
	c.mu.Unlock()

	if deliberate {
		return
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	c.log.Warn().Msg("player: subprocess connection lost")
	c.emit(Event{Kind: EventProcessExit})
}

func (c *Client) deliver(id int, msg ipcMessage) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if msg.Error != "" && msg.Error != "success" {
		ch <- response{err: errors.Newf("mpv: %s", msg.Error)}
		return
	}
	ch <- response{data: msg.Data}
}

func (c *Client) handleEvent(msg ipcMessage) {
	if msg.Event != "end-file" {
		return
	}
	switch msg.Reason {
	case "eof":
		c.emit(Event{Kind: EventTrackEnd})
	case "error":
		c.emit(Event{Kind: EventTrackError})
	default:
		// "stop" fires on every replace-load; not a real completion.
	}
}

// emit never blocks: a stalled consumer must not wedge the read loop,
// which also delivers command responses.
func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.log.Warn().Msgf("player: dropping event %s (consumer not keeping up)", e.Kind)
	}
}

// healthLoop races a lightweight property read against a timeout on a
// fixed interval. An unresponsive subprocess is force-killed, which
// surfaces as a process-exit event via the read loop.
func (c *Client) healthLoop(done chan struct{}) {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HealthTimeout)
		_, err := c.request(ctx, "get_property", "pause")
		cancel()

		if err == nil {
			continue
		}
		if errors.Is(err, ErrShutdown) || errors.Is(err, ErrNotConnected) {
			return
		}
		if errors.Is(err, ErrRequestTimeout) || errors.Is(err, context.DeadlineExceeded) {
			c.log.Warn().Msg("player: health check timed out, killing subprocess")
			c.mu.Lock()
			cmd := c.cmd
			conn := c.conn
			c.mu.Unlock()
			if cmd != nil && cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
	}
}

func (c *Client) propertyBool(ctx context.Context, name string, def bool) bool {
	data, err := c.request(ctx, "get_property", name)
	if err != nil {
		return def
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return def
	}
	return v
}

func (c *Client) propertyString(ctx context.Context, name string, def string) string {
	data, err := c.request(ctx, "get_property", name)
	if err != nil {
		return def
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return def
	}
	return v
}

func (c *Client) propertyFloat(ctx context.Context, name string, def float64) float64 {
	data, err := c.request(ctx, "get_property", name)
	if err != nil {
		return def
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return def
	}
	return v
}
