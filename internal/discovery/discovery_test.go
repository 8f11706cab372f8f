package discovery

import (
	"context"
	"net"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
)

// fakeDockerAPI stands in for the Docker SDK client (dockerAPI), keyed
// by container ID so tests don't need a real daemon.
type fakeDockerAPI struct {
	summaries []container.Summary
	inspects  map[string]container.InspectResponse
}

func (f fakeDockerAPI) ContainerList(ctx context.Context, opts container.ListOptions) ([]container.Summary, error) {
	return f.summaries, nil
}

func (f fakeDockerAPI) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	return f.inspects[containerID], nil
}

type fakeDialer struct {
	reachablePorts map[int]bool
}

func (f fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	_, portStr, _ := net.SplitHostPort(address)
	var port int
	fmtSscan(portStr, &port)
	if f.reachablePorts[port] {
		server, client := net.Pipe()
		go server.Close()
		return client, nil
	}
	return nil, errUnreachable
}

func fmtSscan(s string, out *int) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return
		}
		n = n*10 + int(r-'0')
	}
	*out = n
}

var errUnreachable = &net.OpError{Op: "dial", Err: errRefused{}}

type errRefused struct{}

func (errRefused) Error() string { return "connection refused" }

func TestDockerContainers_FindsReachablePort(t *testing.T) {
	resp := container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{ID: "abc123", Name: "/web"},
		Config:            &container.Config{Env: []string{"RUBY_DEBUG_PORT=1234", "PATH=/usr/bin"}},
		NetworkSettings: &container.NetworkSettings{
			NetworkSettingsBase: container.NetworkSettingsBase{
				Ports: nat.PortMap{
					"1234/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "45678"}},
				},
			},
		},
	}

	d := &Discoverer{
		EnvVar: "RUBY_DEBUG_PORT",
		docker: fakeDockerAPI{
			summaries: []container.Summary{{ID: "abc123"}},
			inspects:  map[string]container.InspectResponse{"abc123": resp},
		},
		dial: fakeDialer{reachablePorts: map[int]bool{45678: true}},
	}

	found, err := d.DockerContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "web", found[0].Name)
	require.Equal(t, 45678, found[0].Port)
	require.Equal(t, SourceDocker, found[0].Source)
}

func TestDockerContainers_SkipsUnreachablePort(t *testing.T) {
	resp := container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{ID: "abc123", Name: "/web"},
		Config:            &container.Config{Env: []string{"RUBY_DEBUG_PORT=1234"}},
		NetworkSettings: &container.NetworkSettings{
			NetworkSettingsBase: container.NetworkSettingsBase{
				Ports: nat.PortMap{
					"1234/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "45678"}},
				},
			},
		},
	}

	d := &Discoverer{
		EnvVar: "RUBY_DEBUG_PORT",
		docker: fakeDockerAPI{
			summaries: []container.Summary{{ID: "abc123"}},
			inspects:  map[string]container.InspectResponse{"abc123": resp},
		},
		dial: fakeDialer{reachablePorts: map[int]bool{}},
	}

	found, err := d.DockerContainers(context.Background())
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestDockerContainers_NoContainersIsNotError(t *testing.T) {
	d := &Discoverer{
		EnvVar: "RUBY_DEBUG_PORT",
		docker: fakeDockerAPI{},
		dial:   fakeDialer{},
	}

	found, err := d.DockerContainers(context.Background())
	require.NoError(t, err)
	require.Empty(t, found)
}
