// internal/workers/proposal/parse-proposal/config.go
package parseproposal

import (
	"time"

	"rfp-pipeline/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func NewConfig(cfg config.WorkerConfig) *Config {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Config{Timeout: timeout}
}
