package metrics

import (
	"oraclehub/internal/config"

	"github.com/grafana/pyroscope-go"
)

// InitPProf starts continuous profiling; disabled config returns a nil profiler.
func InitPProf(instanceID, env string, cfg *config.PyroscopeConfig) (*pyroscope.Profiler, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if env == "" {
		env = "dev"
	}

	pTags := map[string]string{
		"env":      env,
		"instance": instanceID,
	}
	for k, v := range cfg.Tags {
		pTags[k] = v
	}

	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.ServerAddr,
		AuthToken:       cfg.AuthToken,
		Logger:          pyroscope.StandardLogger,
		Tags:            pTags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockDuration,
		},
	})
}
