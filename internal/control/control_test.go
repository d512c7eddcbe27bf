package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeRPC serves newline-delimited JSON-RPC on a loopback listener,
// answering every request with the scripted handler.
func startFakeRPC(t *testing.T, handle func(method string, params json.RawMessage) (interface{}, *rpcError)) (string, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req struct {
				ID     uint64          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}

			result, rpcErr := handle(req.Method, req.Params)
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			data, _ := json.Marshal(resp)
			fmt.Fprintf(conn, "%s\n", data)
		}
	}()

	t.Cleanup(func() {
		l.Close()
		wg.Wait()
	})

	addr := l.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestClientSetVolume(t *testing.T) {
	var mu sync.Mutex
	var gotMethod string
	var gotParams json.RawMessage

	host, port := startFakeRPC(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		mu.Lock()
		gotMethod = method
		gotParams = append([]byte(nil), params...)
		mu.Unlock()
		return map[string]interface{}{}, nil
	})

	c, err := Dial(host, port)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetVolume("livingroom", 65, true))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Client.SetVolume", gotMethod)

	var params struct {
		ID     string `json:"id"`
		Volume struct {
			Percent int  `json:"percent"`
			Muted   bool `json:"muted"`
		} `json:"volume"`
	}
	require.NoError(t, json.Unmarshal(gotParams, &params))
	assert.Equal(t, "livingroom", params.ID)
	assert.Equal(t, 65, params.Volume.Percent)
	assert.True(t, params.Volume.Muted)
}

func TestClientSetLatency(t *testing.T) {
	host, port := startFakeRPC(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "Client.SetLatency", method)
		return map[string]interface{}{}, nil
	})

	c, err := Dial(host, port)
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.SetLatency("livingroom", 40))
}

func TestClientServerError(t *testing.T) {
	host, port := startFakeRPC(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32602, Message: "client not found"}
	})

	c, err := Dial(host, port)
	require.NoError(t, err)
	defer c.Close()

	err = c.SetVolume("ghost", 10, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client not found")
}

func TestClientServerStatus(t *testing.T) {
	host, port := startFakeRPC(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "Server.GetStatus", method)
		return map[string]interface{}{"server": map[string]interface{}{"version": "0.28.0"}}, nil
	})

	c, err := Dial(host, port)
	require.NoError(t, err)
	defer c.Close()

	result, err := c.ServerStatus()
	require.NoError(t, err)
	assert.Contains(t, string(result), "0.28.0")
}

func TestClientCallAfterClose(t *testing.T) {
	host, port := startFakeRPC(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return map[string]interface{}{}, nil
	})

	c, err := Dial(host, port)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Error(t, c.SetVolume("livingroom", 50, false))
}

func TestDialRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	_, err = Dial("127.0.0.1", port)
	assert.Error(t, err)
}
