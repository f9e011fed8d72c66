package cron

const defaultBatchSize = 100

func batchOrDefault(n int) int {
	if n <= 0 {
		return defaultBatchSize
	}
	return n
}
