// Package control speaks the server's JSON-RPC control channel, used to push
// volume changes back so other clients and the server UI stay in sync.
package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultPort is the server's JSON-RPC control port, one above the stream
	// port by convention.
	DefaultPort = 1705

	dialTimeout  = 5 * time.Second
	replyTimeout = 5 * time.Second
)

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is a connection to the server's control channel. Safe for
// concurrent use; each call waits for its own reply.
type Client struct {
	conn   net.Conn
	nextID uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan *response
	closed  bool
}

// Dial connects to the control channel at host:port.
func Dial(host string, port int) (*Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control channel %s: %w", addr, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan *response),
	}
	go c.readLoop()
	return c, nil
}

// Close shuts the connection down; outstanding calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

// call sends one request and waits for its reply.
func (c *Client) call(method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("control client closed")
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(&req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = c.conn.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("control write failed: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("control connection closed")
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-time.After(replyTimeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("control call %s timed out", method)
	}
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		if resp.ID == nil {
			// server notification; nothing to route
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
	c.Close()
}

// SetVolume pushes this client's volume and mute state to the server.
func (c *Client) SetVolume(clientID string, percent int, muted bool) error {
	params := map[string]interface{}{
		"id": clientID,
		"volume": map[string]interface{}{
			"percent": percent,
			"muted":   muted,
		},
	}
	_, err := c.call("Client.SetVolume", params)
	return err
}

// SetLatency pushes this client's latency to the server.
func (c *Client) SetLatency(clientID string, ms int) error {
	params := map[string]interface{}{
		"id":      clientID,
		"latency": ms,
	}
	_, err := c.call("Client.SetLatency", params)
	return err
}

// ServerStatus fetches the server's full status document.
func (c *Client) ServerStatus() (json.RawMessage, error) {
	return c.call("Server.GetStatus", nil)
}
