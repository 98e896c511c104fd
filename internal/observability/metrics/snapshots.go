package metrics

// SnapshotSave records a snapshot save and its size.
func SnapshotSave(status string, size int) {
	if !enabled {
		return
	}
	snapshotSaveTotal.WithLabelValues(status).Inc()
	if status == "success" {
		snapshotBytes.Observe(float64(size))
	}
}

// SnapshotGet records a snapshot read ("hit", "miss" or "error").
func SnapshotGet(status string) {
	if !enabled {
		return
	}
	snapshotGetTotal.WithLabelValues(status).Inc()
}

// SessionClear records an explicit session deletion.
func SessionClear(status string) {
	if !enabled {
		return
	}
	sessionClearTotal.WithLabelValues(status).Inc()
}

// SessionsPurged records sessions removed by the purge loop.
func SessionsPurged(n int64) {
	if !enabled || n <= 0 {
		return
	}
	sessionsPurgedTotal.Add(float64(n))
}
