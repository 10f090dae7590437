// Package profile resolves symbolic device and network selectors into
// concrete browser emulation parameters. Resolution is a pure lookup;
// unknown selectors fall back to "desktop"/"4g".
package profile

// DeviceProfile describes viewport and identity emulation for a run.
// Resolved once per analysis request and never mutated afterwards.
type DeviceProfile struct {
	Name           string
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	PixelRatio     float64
	IsTouch        bool
}

// NetworkProfile describes throughput and latency throttling for a run.
// Throughput values are bits per second.
type NetworkProfile struct {
	Name        string
	DownloadBps int
	UploadBps   int
	LatencyMs   int
}

const (
	DefaultDevice  = "desktop"
	DefaultNetwork = "4g"
)

const (
	desktopUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	mobileUA  = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36"
)

var devices = map[string]DeviceProfile{
	"desktop": {
		Name:           "desktop",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		UserAgent:      desktopUA,
		PixelRatio:     1.0,
	},
	"mobile": {
		Name:           "mobile",
		ViewportWidth:  390,
		ViewportHeight: 844,
		UserAgent:      mobileUA,
		PixelRatio:     3.0,
		IsTouch:        true,
	},
}

// Throttling tiers follow the Chrome DevTools presets.
var networks = map[string]NetworkProfile{
	"wifi": {
		Name:        "wifi",
		DownloadBps: 30_000_000,
		UploadBps:   15_000_000,
		LatencyMs:   2,
	},
	"4g": {
		Name:        "4g",
		DownloadBps: 4_000_000,
		UploadBps:   3_000_000,
		LatencyMs:   20,
	},
	"3g": {
		Name:        "3g",
		DownloadBps: 1_600_000,
		UploadBps:   750_000,
		LatencyMs:   150,
	},
}

// KnownDevice reports whether a device selector names a real profile.
func KnownDevice(name string) bool {
	_, ok := devices[name]
	return ok
}

// KnownNetwork reports whether a network selector names a real tier.
func KnownNetwork(name string) bool {
	_, ok := networks[name]
	return ok
}

// Resolve maps a device type and network tier to concrete profiles.
// Unknown values resolve to the documented defaults instead of failing.
func Resolve(deviceType, networkTier string) (DeviceProfile, NetworkProfile) {
	device, ok := devices[deviceType]
	if !ok {
		device = devices[DefaultDevice]
	}
	network, ok := networks[networkTier]
	if !ok {
		network = networks[DefaultNetwork]
	}
	return device, network
}
