package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ContainerRestarter restarts a container by name.
type ContainerRestarter interface {
	Restart(ctx context.Context, name string) error
}

// DockerClient talks to the Docker Engine API over its unix socket or TCP.
type DockerClient struct {
	baseURL string
	http    *http.Client
}

// NewDockerClient accepts unix:///path/to/docker.sock or tcp://host:port.
func NewDockerClient(host string) (*DockerClient, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid docker host %q: %w", host, err)
	}
	switch u.Scheme {
	case "unix":
		socket := u.Path
		transport := &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		}
		return &DockerClient{baseURL: "http://docker", http: &http.Client{Transport: transport, Timeout: 60 * time.Second}}, nil
	case "tcp", "http":
		return &DockerClient{baseURL: "http://" + u.Host, http: &http.Client{Timeout: 60 * time.Second}}, nil
	case "https":
		return &DockerClient{baseURL: "https://" + u.Host, http: &http.Client{Timeout: 60 * time.Second}}, nil
	default:
		return nil, fmt.Errorf("unsupported docker host scheme %q", u.Scheme)
	}
}

// Restart asks the engine to restart a container, giving it 10s to stop.
func (d *DockerClient) Restart(ctx context.Context, name string) error {
	endpoint := fmt.Sprintf("%s/containers/%s/restart?t=10", d.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("docker request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("container %s not found", name)
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("docker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
}
