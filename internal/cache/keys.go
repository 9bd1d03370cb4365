package cache

import "fmt"

func SnapshotKey(jobID string) string {
	return fmt.Sprintf("research:status:%s", jobID)
}

func RateLimitKey(client string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", client, window)
}
