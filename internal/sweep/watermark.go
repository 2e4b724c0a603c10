package sweep

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gsi-monitoring/piezosync/internal/eagleio"
)

// recentPageLimit bounds the historic page read per child node. The most
// recent points are enough to find a child's latest timestamp; no full scan.
const recentPageLimit = 25

// watermarkBackoff is how far behind the resolved watermark fetching starts.
// Re-covering the trailing day guards against a child series whose last page
// landed mid-upload; uploads are idempotent per timestamp, so the overlap is
// harmless.
const watermarkBackoff = 24 * time.Hour

// WatermarkResolver finds the timestamp a series is synchronized through in
// the destination store. Read-only and idempotent.
type WatermarkResolver struct {
	dest         Destination
	defaultStart time.Time
}

// NewWatermarkResolver builds a resolver. defaultStart is the beginning of
// monitoring, used when the series does not exist yet.
func NewWatermarkResolver(dest Destination, defaultStart time.Time) *WatermarkResolver {
	return &WatermarkResolver{dest: dest, defaultStart: defaultStart}
}

// Resolve returns the fetch start time for a series. Each of the series'
// child parameter nodes is read for its most recent points; the watermark is
// the minimum of the per-child maxima, so no child is skipped even if the
// children have drifted apart. A missing series resolves to the default
// start. So does a series with no children: that is a freshly provisioned
// datasource whose parameter nodes are created by the first upload.
func (r *WatermarkResolver) Resolve(ctx context.Context, name string) (time.Time, error) {
	datasourceID, err := r.dest.DatasourceIDByName(ctx, name)
	if err != nil {
		if errors.Is(err, eagleio.ErrNotFound) {
			return r.defaultStart, nil
		}
		return time.Time{}, err
	}

	children, err := r.dest.ChildNodeIDs(ctx, datasourceID)
	if err != nil {
		return time.Time{}, err
	}
	if len(children) == 0 {
		log.Printf("%s: datasource has no parameter nodes yet, syncing from %s", name, r.defaultStart.Format(time.RFC3339))
		return r.defaultStart, nil
	}

	end := time.Now().UTC().AddDate(0, 0, 1).Truncate(24 * time.Hour)

	watermark := time.Time{}
	for _, childID := range children {
		times, err := r.dest.LatestPointTimes(ctx, childID, recentPageLimit, end)
		if err != nil {
			return time.Time{}, err
		}

		// A child with no stored points pins the watermark to the
		// default start: its history has to be covered from scratch.
		childMax := r.defaultStart
		for _, t := range times {
			if t.After(childMax) {
				childMax = t
			}
		}

		if watermark.IsZero() || childMax.Before(watermark) {
			watermark = childMax
		}
	}

	if watermark.Equal(r.defaultStart) {
		return r.defaultStart, nil
	}
	return watermark.Add(-watermarkBackoff), nil
}
