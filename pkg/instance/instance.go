package instance

import "github.com/dealerhub/showroom/pkg/env"

// GetID names this process in logs. SHOWROOM_INSTANCE_ID wins over the
// container hostname.
func GetID() string {
	return env.Get("SHOWROOM_INSTANCE_ID", env.Get("HOSTNAME", "local"))
}
