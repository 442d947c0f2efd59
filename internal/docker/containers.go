// containers.go queries containers belonging to a compose project.
// Docker Compose labels every container it creates with the project
// and service name; filtering on those labels server-side is how the
// deploy preflight tells a first deploy from a redeploy.
package docker

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// Compose-maintained labels on containers it creates.
const (
	labelComposeProject = "com.docker.compose.project"
	labelComposeService = "com.docker.compose.service"
)

// ContainerInfo describes one container of a compose project.
type ContainerInfo struct {
	// ID is the full container ID.
	ID string

	// Name is the container name without the API's leading slash.
	Name string

	// Service is the compose service the container belongs to.
	Service string

	// State is the short Docker state string ("running", "exited", ...).
	State string
}

// ProjectContainers lists the running containers of a compose project.
// The filter is evaluated by the daemon, so unrelated containers on
// the host never cross the wire.
func ProjectContainers(ctx context.Context, cli *Client, project string) ([]ContainerInfo, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", labelComposeProject+"="+project),
		filters.Arg("status", "running"),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list containers",
			err,
		)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			// The API reports names with a leading "/".
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, ContainerInfo{
			ID:      c.ID,
			Name:    name,
			Service: c.Labels[labelComposeService],
			State:   c.State,
		})
	}
	return result, nil
}
