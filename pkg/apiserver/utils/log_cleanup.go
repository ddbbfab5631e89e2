package utils

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"k8s.io/klog/v2"
)

// klog file names look like "program.host.user.log.SEVERITY.20250725-160435.27455".
var klogLogNamePattern = regexp.MustCompile(`.+\..+\..+\.log\.(INFO|WARNING|ERROR|FATAL)\.(\d{8}-\d{6})\.\d+$`)

const (
	klogTimestampFormat  = "20060102-150405"
	cleanupCheckInterval = 24 * time.Hour
	defaultMaxLogAge     = 7 * 24 * time.Hour
)

// StartLogCleanup removes klog files older than maxAge from logDir now and then once a day
// until ctx is done.
func StartLogCleanup(ctx context.Context, logDir string, maxAge time.Duration) {
	if logDir == "" {
		klog.V(2).Info("log cleanup disabled, log_dir is not set")
		return
	}
	if maxAge <= 0 {
		maxAge = defaultMaxLogAge
		klog.Warningf("Invalid max log age provided, defaulting to %v", maxAge)
	}
	klog.Infof("Starting log cleanup service for directory %s, with max age %v", logDir, maxAge)

	go func() {
		CleanupLogs(logDir, maxAge, time.Now())
		ticker := time.NewTicker(cleanupCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				CleanupLogs(logDir, maxAge, now)
			}
		}
	}()
}

// CleanupLogs deletes klog files in logDir whose embedded timestamp is older than now-maxAge.
// It returns the number of files removed.
func CleanupLogs(logDir string, maxAge time.Duration, now time.Time) int {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		klog.Errorf("Failed to read log directory %s for cleanup: %v", logDir, err)
		return 0
	}

	cutoff := now.Add(-maxAge)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := klogLogNamePattern.FindStringSubmatch(entry.Name())
		if len(matches) < 3 {
			continue
		}
		logTime, err := time.ParseInLocation(klogTimestampFormat, matches[2], time.Local)
		if err != nil {
			klog.Warningf("Could not parse timestamp from log file name %s: %v", entry.Name(), err)
			continue
		}
		if !logTime.Before(cutoff) {
			continue
		}
		path := filepath.Join(logDir, entry.Name())
		if err := os.Remove(path); err != nil {
			klog.Errorf("Failed to delete old log file %s: %v", path, err)
			continue
		}
		deleted++
	}
	klog.V(2).Infof("Log cleanup finished. Deleted %d file(s).", deleted)
	return deleted
}
