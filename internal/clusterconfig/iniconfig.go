package clusterconfig

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// CoreSettings are the cmapi-wide tunables read from the INI config,
// separate from cluster membership (which lives in the XML file).
type CoreSettings struct {
	SamplingInterval   time.Duration // Heartbeat/Monitor/Policy.samplingInterval
	FlakyNodeThreshold float64       // Policy.flakyNodeThreshold, fraction in [0,1]
	DispatcherName     string        // Dispatcher.name: "systemd" or "container"
	DispatcherPath     string        // Dispatcher.path, only meaningful for non-default backends
}

// LoadCoreSettings reads CoreSettings from an INI file at path.
func LoadCoreSettings(path string) (*CoreSettings, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("clusterconfig: load ini %s: %w", path, err)
	}

	policy := f.Section("Policy")
	dispatcher := f.Section("Dispatcher")

	secs := policy.Key("samplingInterval").MustInt(1)
	threshold := policy.Key("flakyNodeThreshold").MustFloat64(0.5)

	return &CoreSettings{
		SamplingInterval:   time.Duration(secs) * time.Second,
		FlakyNodeThreshold: threshold,
		DispatcherName:     dispatcher.Key("name").MustString("systemd"),
		DispatcherPath:     dispatcher.Key("path").String(),
	}, nil
}
