package fcm

import (
	"crypto/sha256"
	"encoding/binary"

	pushbridge "github.com/slush-dev/push-bridge"
)

// deviceTypeAndroidOS is checkin.proto's DEVICE_ANDROID_OS.
const deviceTypeAndroidOS = 1

// DeviceProfile describes the device presented at check-in.
type DeviceProfile struct {
	// Fingerprint is the build fingerprint
	// Format: brand/product/device:version/build_id/build_number:user/release-keys
	Fingerprint string

	Hardware     string
	Brand        string
	Manufacturer string
	Device       string
	Model        string

	// SDKVersion is the platform API level
	SDKVersion int

	// ClientID identifies the check-in client library
	ClientID string

	// ClientVersion is the push client library version code
	ClientVersion int
}

// DefaultDeviceProfile returns the profile of a headless bridge host.
func DefaultDeviceProfile() DeviceProfile {
	return DeviceProfile{
		Fingerprint:   "pushbridge/headless/headless:13/PB1A.250318.001/1:user/release-keys",
		Hardware:      "headless",
		Brand:         "pushbridge",
		Manufacturer:  "pushbridge",
		Device:        "headless",
		Model:         "push-bridge",
		SDKVersion:    33,
		ClientID:      "android-google",
		ClientVersion: 241516037,
	}
}

// deviceTokenFor derives the 32-byte device token from the check-in
// identity. The security token never appears in the output directly.
func deviceTokenFor(androidID, securityToken uint64) pushbridge.DeviceToken {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], androidID)
	binary.BigEndian.PutUint64(buf[8:], securityToken)
	sum := sha256.Sum256(buf[:])
	return pushbridge.DeviceToken(sum[:])
}
