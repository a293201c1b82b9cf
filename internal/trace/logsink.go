package trace

import (
	"log"
)

// LogSink writes one line per event
type LogSink struct {
	Logger *log.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Write(ev Event) error {
	line := string(ev.Kind) + " " + ev.Target
	if ev.Detail != "" {
		line += " (" + ev.Detail + ")"
	}
	if ev.Result != "" {
		line += " -> " + ev.Result
	}
	if ev.Exception != 0 {
		s.Logger.Printf("%s exception=0x%08X %v", line, ev.Exception, ev.Duration)
		return nil
	}
	if ev.Err != "" {
		s.Logger.Printf("%s error=%q %v", line, ev.Err, ev.Duration)
		return nil
	}
	s.Logger.Printf("%s lasterror=%d %v", line, ev.LastError, ev.Duration)
	return nil
}

func (s *LogSink) Close() error { return nil }
