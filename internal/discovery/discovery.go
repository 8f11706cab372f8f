// Package discovery enumerates reachable debug endpoints the bridge did
// not connect to explicitly: running Docker containers that export the
// debug port env var, and (on Linux) local processes carrying the same
// hint in their environ (spec §6's "Docker/TCP discovery").
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

// Source tags where a Found entry came from.
type Source string

const (
	SourceDocker Source = "docker"
	SourceProc   Source = "proc"
)

// Found is one discovered, reachability-probed debug endpoint.
type Found struct {
	Host   string
	Port   int
	Name   string
	Source Source
}

// dockerAPI is the narrow slice of the Docker SDK client this package
// drives — list running containers, then inspect each for the env var
// and published port — grounded on kdlbs-kandev's
// internal/agent/docker.Client wrapper over github.com/docker/docker/client.
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// sdkDockerClient adapts *dockerclient.Client to dockerAPI.
type sdkDockerClient struct {
	cli *dockerclient.Client
}

func (c sdkDockerClient) ContainerList(ctx context.Context, opts container.ListOptions) ([]container.Summary, error) {
	return c.cli.ContainerList(ctx, opts)
}

func (c sdkDockerClient) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	return c.cli.ContainerInspect(ctx, containerID)
}

// dialer abstracts reachability probing for testability.
type dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d := net.Dialer{Timeout: 500 * time.Millisecond}
	return d.DialContext(ctx, network, address)
}

// Discoverer finds candidate debug endpoints.
type Discoverer struct {
	EnvVar string // e.g. config.EnvDebugPort
	docker dockerAPI
	dial   dialer
}

// New builds a Discoverer that looks for envVar in container/process
// environments, backed by the real Docker SDK client (DOCKER_HOST and
// friends via client.FromEnv), mirroring kdlbs-kandev's
// internal/agent/docker.NewClient construction.
func New(envVar string) (*Discoverer, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Discoverer{EnvVar: envVar, docker: sdkDockerClient{cli: cli}, dial: netDialer{}}, nil
}

// DockerContainers enumerates running containers, inspects each for
// EnvVar, and returns every reachable port found (spec §6: "enumerate
// running containers, inspect each for an env var naming the debug port;
// return {host, port, name, source} tuples for ports that are
// reachable").
func (d *Discoverer) DockerContainers(ctx context.Context) ([]Found, error) {
	summaries, err := d.docker.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("docker container list: %w", err)
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	var found []Found
	for _, summary := range summaries {
		inspect, err := d.docker.ContainerInspect(ctx, summary.ID)
		if err != nil {
			return nil, fmt.Errorf("docker container inspect %s: %w", summary.ID, err)
		}
		if inspect.Config == nil {
			continue
		}
		port, ok := envPort(inspect.Config.Env, d.EnvVar)
		if !ok {
			continue
		}
		host := hostPortFor(inspect, port)
		if host.Port == 0 {
			continue
		}
		if d.reachable(ctx, host.Host, host.Port) {
			found = append(found, Found{
				Host:   host.Host,
				Port:   host.Port,
				Name:   strings.TrimPrefix(inspect.Name, "/"),
				Source: SourceDocker,
			})
		}
	}
	return found, nil
}

type hostPort struct {
	Host string
	Port int
}

// hostPortFor maps a container-internal debug port to the published
// host-side port Docker assigned. When no publish mapping exists (e.g.
// host networking mode) it returns the zero hostPort, and the caller
// skips that container; the container's own address is not tried.
func hostPortFor(inspect container.InspectResponse, containerPort int) hostPort {
	if inspect.NetworkSettings == nil {
		return hostPort{}
	}
	target := strconv.Itoa(containerPort) + "/"
	for binding, mappings := range inspect.NetworkSettings.Ports {
		if !strings.HasPrefix(string(binding), target) {
			continue
		}
		for _, m := range mappings {
			hp, err := strconv.Atoi(m.HostPort)
			if err != nil {
				continue
			}
			host := m.HostIP
			if host == "" || host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			return hostPort{Host: host, Port: hp}
		}
	}
	return hostPort{}
}

func envPort(env []string, envVar string) (int, bool) {
	prefix := envVar + "="
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(kv, prefix))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func (d *Discoverer) reachable(ctx context.Context, host string, port int) bool {
	conn, err := d.dial.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// reachableLocal probes a local port with a background context, used by
// the Linux /proc enumerator which has no caller-supplied context.
func (d *Discoverer) reachableLocal(port int) bool {
	return d.reachable(context.Background(), "127.0.0.1", port)
}
