package reqcore

import (
	"fmt"
	"io"
	"time"
)

// WriteReport 输出一份纯文本状态报告，供运维留档或诊断附件使用。
func (s *Server) WriteReport(w io.Writer) error {
	state, uptime := s.Status()

	var err error
	write := func(format string, args ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, args...)
	}

	write("Server Status Report - %s\n", time.Now().UTC().Format("20060102_150405"))
	write("Status: %s\n", state)
	write("Uptime: %s\n", uptime.Round(time.Millisecond))

	write("Configuration:\n")
	s.mu.Lock()
	cfg := s.cfg
	stageCount := len(s.stages)
	s.mu.Unlock()
	if cfg != nil {
		write("  addr: %s\n", cfg.Addr())
		write("  workers: %d\n", cfg.Workers)
		write("  timeout: %s\n", cfg.Timeout.DurationValue())
		write("  ssl_enabled: %t\n", cfg.SSLEnabled)
	}

	write("Middleware Count: %d\n", stageCount)
	write("Routes Count: %d\n", s.registry.Len())

	for _, method := range s.registry.sortedMethods() {
		for _, route := range s.registry.List() {
			if route.Method == method {
				write("  %s %s\n", route.Method, route.Pattern)
			}
		}
	}

	snap := s.Metrics()
	write("Requests Total: %d\n", snap.RequestsTotal)
	write("Requests In Flight: %d\n", snap.InFlight)
	for kind, count := range snap.ErrorsByKind {
		write("  error[%s]: %d\n", kind, count)
	}

	return err
}
