package conjunction

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

var runKeyNamespace = uuid.MustParse("6f1c1a2e-5b7d-4c3e-9a0f-2d8e4b61c7a9")

// RunKey derives the deduplication key of a detection run. Requests for the
// same primary, horizon and threshold whose window starts fall into the same
// resolution bucket share a key, so repeating them records nothing new.
// Buckets are fixed wall-clock intervals, not a sliding window: two requests
// seconds apart on either side of a bucket edge get different keys and each
// records its own ACTIVE events.
func RunKey(primaryID int, start time.Time, horizonHours, thresholdKm float64, resolution time.Duration) uuid.UUID {
	bucket := start.UTC().Truncate(resolution)
	name := strconv.Itoa(primaryID) + "|" +
		bucket.Format(time.RFC3339) + "|" +
		strconv.FormatFloat(horizonHours, 'g', -1, 64) + "|" +
		strconv.FormatFloat(thresholdKm, 'g', -1, 64)
	return uuid.NewSHA1(runKeyNamespace, []byte(name))
}
