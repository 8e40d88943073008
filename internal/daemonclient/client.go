package daemonclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/andywolf/agentium/internal/security"
	"github.com/sony/gobreaker"
)

const (
	unaryTimeout     = 30 * time.Second
	streamingTimeout = 300 * time.Second
	apiVersion       = "v1.43"
)

// Client is a minimal client for a container daemon's Unix-socket HTTP API.
// It covers exactly the surface the workspace runner needs: ping, image
// build, container create/start, exec-with-streaming, and stop/remove.
type Client struct {
	socketPath  string
	http        *http.Client
	streamHTTP  *http.Client
	pingBreaker *gobreaker.CircuitBreaker
}

// New builds a Client against the resolved daemon socket. Pass an empty
// override to use the standard resolution order.
func New(socketOverride string) (*Client, error) {
	path, err := ResolveSocketPath(socketOverride)
	if err != nil {
		return nil, err
	}
	dialer := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
	return &Client{
		socketPath: path,
		http: &http.Client{
			Timeout:   unaryTimeout,
			Transport: &http.Transport{DialContext: dialer},
		},
		streamHTTP: &http.Client{
			Timeout:   streamingTimeout,
			Transport: &http.Transport{DialContext: dialer},
		},
		pingBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "daemonclient-ping",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
		}),
	}, nil
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("http://daemon/%s%s", apiVersion, path)
}

// Ping verifies the daemon is reachable and speaking the expected protocol.
// Consecutive failures trip a circuit breaker so a periodic caller like the
// reconciler's sweep loop stops hammering a daemon that is already down
// instead of piling up a new timeout every tick.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.pingBreaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/_ping"), nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("daemonclient: ping: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("daemonclient: ping returned %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

// BuildProgressEvent is one line of the NDJSON build progress stream.
type BuildProgressEvent struct {
	Stream      string `json:"stream,omitempty"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail,omitempty"`
	Error string `json:"error,omitempty"`
	Aux   *struct {
		ID string `json:"ID"`
	} `json:"aux,omitempty"`
}

// BuildImage POSTs a tar-wrapped build context (Dockerfile plus any support
// files) to /build and streams the NDJSON progress events to onProgress as
// they arrive. It returns the built image ID reported in the final `aux`
// event, or an error assembled from the first `errorDetail`/`error` field
// seen.
func (c *Client) BuildImage(ctx context.Context, tarContext io.Reader, tag string, onProgress func(BuildProgressEvent)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/build?t="+tag), tarContext)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-tar")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("daemonclient: build request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("daemonclient: build returned %d: %s", resp.StatusCode, string(body))
	}

	var imageID string
	var buildErr error
	dec := json.NewDecoder(resp.Body)
	for {
		var evt BuildProgressEvent
		if err := dec.Decode(&evt); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("daemonclient: decode build event: %w", err)
		}
		if onProgress != nil {
			onProgress(evt)
		}
		if evt.ErrorDetail != nil && buildErr == nil {
			buildErr = fmt.Errorf("daemonclient: build failed: %s", evt.ErrorDetail.Message)
		} else if evt.Error != "" && buildErr == nil {
			buildErr = fmt.Errorf("daemonclient: build failed: %s", evt.Error)
		}
		if evt.Aux != nil && evt.Aux.ID != "" {
			imageID = evt.Aux.ID
		}
	}
	if buildErr != nil {
		return "", buildErr
	}
	if imageID == "" {
		imageID = tag
	}
	return imageID, nil
}

// ContainerSpec describes the container to create.
type ContainerSpec struct {
	Image       string
	Cmd         []string
	Env         []string
	WorkingDir  string
	Binds       []string // "host:container[:ro]" entries
	Labels      map[string]string
	User        string // non-root user the synthesized recipe created
	Tty         bool
	NetworkMode string                              // e.g. "host"
	Security    *security.ContainerSecurityOptions // nil uses the daemon's defaults
}

type createContainerRequest struct {
	Image      string            `json:"Image"`
	Cmd        []string          `json:"Cmd,omitempty"`
	Env        []string          `json:"Env,omitempty"`
	WorkingDir string            `json:"WorkingDir,omitempty"`
	Labels     map[string]string `json:"Labels,omitempty"`
	User       string            `json:"User,omitempty"`
	Tty        bool              `json:"Tty,omitempty"`
	HostConfig struct {
		Binds          []string `json:"Binds,omitempty"`
		NetworkMode    string   `json:"NetworkMode,omitempty"`
		CapDrop        []string `json:"CapDrop,omitempty"`
		CapAdd         []string `json:"CapAdd,omitempty"`
		SecurityOpt    []string `json:"SecurityOpt,omitempty"`
		PidsLimit      int64    `json:"PidsLimit,omitempty"`
		Memory         int64    `json:"Memory,omitempty"`
		NanoCPUs       int64    `json:"NanoCpus,omitempty"`
		ReadonlyRootfs bool     `json:"ReadonlyRootfs,omitempty"`
	} `json:"HostConfig"`
}

type createContainerResponse struct {
	ID       string   `json:"Id"`
	Warnings []string `json:"Warnings"`
}

// CreateAndStart creates a container from spec and starts it, returning its
// container ID.
func (c *Client) CreateAndStart(ctx context.Context, spec ContainerSpec) (string, error) {
	reqBody := createContainerRequest{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Env:        spec.Env,
		WorkingDir: spec.WorkingDir,
		Labels:     spec.Labels,
		User:       spec.User,
		Tty:        spec.Tty,
	}
	reqBody.HostConfig.Binds = spec.Binds
	reqBody.HostConfig.NetworkMode = spec.NetworkMode
	if spec.Security != nil {
		reqBody.HostConfig.CapDrop = spec.Security.DropCapabilities
		reqBody.HostConfig.CapAdd = spec.Security.AddCapabilities
		reqBody.HostConfig.SecurityOpt = spec.Security.SecurityOpts
		reqBody.HostConfig.PidsLimit = int64(spec.Security.PidsLimit)
		reqBody.HostConfig.ReadonlyRootfs = spec.Security.ReadOnlyRootFilesystem
		if bytes := security.ParseMemoryLimit(spec.Security.MemoryLimit); bytes > 0 {
			reqBody.HostConfig.Memory = bytes
		}
		if nanoCPUs := security.ParseCPULimit(spec.Security.CPULimit); nanoCPUs > 0 {
			reqBody.HostConfig.NanoCPUs = nanoCPUs
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/containers/create"), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("daemonclient: create container: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("daemonclient: create container returned %d: %s", resp.StatusCode, string(body))
	}

	var created createContainerResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("daemonclient: decode create response: %w", err)
	}

	startReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/containers/"+created.ID+"/start"), nil)
	if err != nil {
		return "", err
	}
	startResp, err := c.http.Do(startReq)
	if err != nil {
		return "", fmt.Errorf("daemonclient: start container %s: %w", created.ID, err)
	}
	defer startResp.Body.Close()
	if startResp.StatusCode != http.StatusNoContent && startResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(startResp.Body)
		return "", fmt.Errorf("daemonclient: start container %s returned %d: %s", created.ID, startResp.StatusCode, string(body))
	}

	return created.ID, nil
}

// ContainerState reports the subset of /containers/{id}/json this client
// cares about.
type ContainerState struct {
	Running bool
}

type inspectResponse struct {
	State struct {
		Running bool `json:"Running"`
	} `json:"State"`
}

// Inspect reports whether containerID still exists on the daemon and, if so,
// whether it's running. A missing container is reported as (nil, nil) rather
// than an error, since "gone" is an expected outcome for reconciliation.
func (c *Client) Inspect(ctx context.Context, containerID string) (*ContainerState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/containers/"+containerID+"/json"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemonclient: inspect container %s: %w", containerID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("daemonclient: inspect container %s returned %d: %s", containerID, resp.StatusCode, string(body))
	}
	var decoded inspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("daemonclient: decode inspect response for %s: %w", containerID, err)
	}
	return &ContainerState{Running: decoded.State.Running}, nil
}

// StopAndRemove stops a container (with a grace period) and removes it.
func (c *Client) StopAndRemove(ctx context.Context, containerID string, gracePeriod time.Duration) error {
	stopReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s?t=%d", c.url("/containers/"+containerID+"/stop"), int(gracePeriod.Seconds())), nil)
	if err != nil {
		return err
	}
	if resp, err := c.http.Do(stopReq); err == nil {
		resp.Body.Close()
	}

	removeReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/containers/"+containerID+"?force=true"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(removeReq)
	if err != nil {
		return fmt.Errorf("daemonclient: remove container %s: %w", containerID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemonclient: remove container %s returned %d: %s", containerID, resp.StatusCode, string(body))
	}
	return nil
}
