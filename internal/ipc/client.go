package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"splicer/internal/history"
	"splicer/internal/jobs"
	"splicer/internal/services"
)

const defaultPollInterval = 200 * time.Millisecond

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// MediaInfo probes a file through the daemon.
func (c *Client) MediaInfo(path string) (*MediaInfoResponse, error) {
	var resp MediaInfoResponse
	if err := c.call("MediaInfo", MediaInfoRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartMerge starts a merge and returns its job id. Rejections are mapped
// back onto the services sentinels.
func (c *Client) StartMerge(inputs []string, output string) (string, error) {
	var resp StartMergeResponse
	if err := c.call("StartMerge", StartMergeRequest{Inputs: inputs, Output: output}, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errorFromKind(resp.ErrorKind, resp.Error)
	}
	return resp.JobID, nil
}

// Events polls a job's events after sinceSeq.
func (c *Client) Events(jobID string, sinceSeq int64) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.call("Events", EventsRequest{JobID: jobID, SinceSeq: sinceSeq}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Follow polls jobID until its terminal event, invoking onEvent in sequence
// order. It returns the terminal event.
func (c *Client) Follow(ctx context.Context, jobID string, interval time.Duration, onEvent func(jobs.Event)) (jobs.Event, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq int64
	for {
		resp, err := c.Events(jobID, seq)
		if err != nil {
			return jobs.Event{}, err
		}
		for _, ev := range resp.Events {
			seq = ev.Seq
			if onEvent != nil {
				onEvent(ev)
			}
			if ev.Kind.Terminal() {
				return ev, nil
			}
		}
		if resp.Done {
			return jobs.Event{}, errors.New("job ended without a buffered terminal event")
		}
		select {
		case <-ctx.Done():
			return jobs.Event{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CancelMerge cancels the active merge and deletes output.
func (c *Client) CancelMerge(output string) (*CancelMergeResponse, error) {
	var resp CancelMergeResponse
	if err := c.call("CancelMerge", CancelMergeRequest{Output: output}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForceDelete force-deletes path.
func (c *Client) ForceDelete(path string) (*ForceDeleteResponse, error) {
	var resp ForceDeleteResponse
	if err := c.call("ForceDelete", ForceDeleteRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FileExists reports whether path exists on the daemon host.
func (c *Client) FileExists(path string) (bool, error) {
	var resp FileExistsResponse
	if err := c.call("FileExists", FileExistsRequest{Path: path}, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// FileSize returns the size of path in bytes.
func (c *Client) FileSize(path string) (int64, error) {
	var resp FileSizeResponse
	if err := c.call("FileSize", FileSizeRequest{Path: path}, &resp); err != nil {
		return 0, err
	}
	return resp.Size, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ToolCheck retrieves external tool versions.
func (c *Client) ToolCheck() (*ToolCheckResponse, error) {
	var resp ToolCheckResponse
	if err := c.call("ToolCheck", ToolCheckRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists recorded jobs.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryEntry returns the recorded entry for one job.
func (c *Client) HistoryEntry(jobID string) (*history.Entry, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Entries) == 0 {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return &resp.Entries[0], nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// remoteError keeps the daemon's message while matching the local sentinel.
type remoteError struct {
	marker  error
	message string
}

func (e *remoteError) Error() string { return e.message }

func (e *remoteError) Unwrap() error { return e.marker }

func errorFromKind(kind, message string) error {
	var marker error
	switch kind {
	case "already_running":
		marker = services.ErrAlreadyRunning
	case "spawn":
		marker = services.ErrSpawn
	case "probe":
		marker = services.ErrProbe
	case "io":
		marker = services.ErrIO
	case "deletion_exhausted":
		marker = services.ErrDeletionExhausted
	case "validation":
		marker = services.ErrValidation
	case "unavailable":
		marker = services.ErrUnavailable
	default:
		marker = services.ErrExternalTool
	}
	return &remoteError{marker: marker, message: message}
}
