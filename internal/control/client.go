package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client issues one command per call over a fresh loopback connection.
type Client struct {
	addr    string
	timeout time.Duration
}

func NewClient(port int) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return &Client{
		addr:    fmt.Sprintf("127.0.0.1:%d", port),
		timeout: 5 * time.Second,
	}
}

// NewClientAddr targets an explicit address, used by tests against
// ephemeral ports.
func NewClientAddr(addr string) *Client {
	return &Client{addr: addr, timeout: 5 * time.Second}
}

// Do sends the command and blocks for its response.
func (c *Client) Do(command string) (Response, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return Response{}, fmt.Errorf("control: dial %s: %w", c.addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	payload, err := json.Marshal(Request{Command: command})
	if err != nil {
		return Response{}, fmt.Errorf("control: encode request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return Response{}, fmt.Errorf("control: send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("control: read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("control: decode response: %w", err)
	}
	return resp, nil
}
