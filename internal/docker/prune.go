// prune.go implements the post-run Docker cleanup. A pipeline host
// that builds an image per run accumulates stopped containers and
// dangling layers quickly; pruning after every run keeps the disk
// bounded without touching images that are still tagged.
package docker

import (
	"context"

	"github.com/docker/docker/api/types/filters"
)

// PruneReport summarizes what a post-run prune removed.
type PruneReport struct {
	// ContainersDeleted is the number of stopped containers removed.
	ContainersDeleted int

	// ImagesDeleted is the number of dangling image layers removed.
	ImagesDeleted int

	// SpaceReclaimed is the total bytes freed.
	SpaceReclaimed uint64
}

// Prune removes stopped containers and dangling images via the Docker
// API. Only dangling (untagged) images are touched, so the image the
// run just built — tagged with the build number and latest — survives.
//
// Errors are returned for the caller to log; the post-action contract
// is that prune failures never change the run outcome.
func (c *Client) Prune(ctx context.Context) (PruneReport, error) {
	var report PruneReport

	containers, err := c.inner.ContainersPrune(ctx, filters.Args{})
	if err != nil {
		return report, err
	}
	report.ContainersDeleted = len(containers.ContainersDeleted)
	report.SpaceReclaimed += containers.SpaceReclaimed

	images, err := c.inner.ImagesPrune(ctx, filters.NewArgs(
		filters.Arg("dangling", "true"),
	))
	if err != nil {
		return report, err
	}
	report.ImagesDeleted = len(images.ImagesDeleted)
	report.SpaceReclaimed += images.SpaceReclaimed

	return report, nil
}
