// Package monitoring exposes run progress: a stats file and log file on
// disk, an in-process event hub with an HTTP/SSE server, and threshold
// alerts.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/nonprofit-cli/internal/model"
)

// Sink receives run statistics from the pipeline, rewrites the stats file
// and forwards each snapshot to the hub. Workers publish concurrently, so a
// progress snapshot older than the last one emitted for the same run is
// dropped.
type Sink struct {
	statsFile string
	hub       *Hub

	mu            sync.Mutex
	lastRun       string
	lastProcessed int
}

// NewSink creates a sink. An empty statsFile disables the file; a nil hub
// disables events.
func NewSink(statsFile string, hub *Hub) *Sink {
	return &Sink{statsFile: statsFile, hub: hub}
}

// Progress records an in-progress snapshot.
func (s *Sink) Progress(snap model.StatsSnapshot) { s.emit(EventProgress, snap) }

// Finished records the final snapshot.
func (s *Sink) Finished(snap model.StatsSnapshot) { s.emit(EventFinished, snap) }

func (s *Sink) emit(typ string, snap model.StatsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typ == EventProgress && snap.RunID == s.lastRun && snap.Processed < s.lastProcessed {
		return
	}
	s.lastRun, s.lastProcessed = snap.RunID, snap.Processed

	if s.statsFile != "" {
		if err := WriteStats(s.statsFile, snap); err != nil {
			zap.L().Warn("monitoring: write stats file", zap.String("path", s.statsFile), zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Publish(typ, snap)
	}
}

// WriteStats replaces path with the JSON snapshot. Readers never see a
// partially written file.
func WriteStats(path string, snap model.StatsSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal stats")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".stats-*.json")
	if err != nil {
		return eris.Wrap(err, "monitoring: create temp stats file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "monitoring: write stats")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "monitoring: close stats")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "monitoring: replace stats file")
	}
	return nil
}

// ReadStats loads a stats file written by WriteStats.
func ReadStats(path string) (model.StatsSnapshot, error) {
	var snap model.StatsSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, eris.Wrapf(err, "monitoring: read stats %s", path)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, eris.Wrapf(err, "monitoring: parse stats %s", path)
	}
	return snap, nil
}

// AttachLogFile tees the global logger into path as timestamped console
// lines. The returned function restores the previous logger and closes the
// file.
func AttachLogFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "monitoring: open log file %s", path)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)

	prev := zap.L()
	logger := zap.New(zapcore.NewTee(prev.Core(), fileCore))
	restoreGlobals := zap.ReplaceGlobals(logger)

	return func() {
		_ = logger.Sync()
		restoreGlobals()
		_ = f.Close()
	}, nil
}
