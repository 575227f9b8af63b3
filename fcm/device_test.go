package fcm

import (
	"regexp"
	"testing"
)

func TestDefaultDeviceProfile(t *testing.T) {
	device := DefaultDeviceProfile()

	// Format: brand/product/device:version/build_id/build_number:user/release-keys
	fingerprintPattern := regexp.MustCompile(`^[^/]+/[^/]+/[^:]+:[0-9]+/[^/]+/[^:]+:(user|userdebug)/(release-keys|dev-keys)$`)
	if !fingerprintPattern.MatchString(device.Fingerprint) {
		t.Errorf("Fingerprint has invalid format: %s", device.Fingerprint)
	}

	if device.SDKVersion < 24 || device.SDKVersion > 40 {
		t.Errorf("SDKVersion should be between 24 and 40, got: %d", device.SDKVersion)
	}
	if device.ClientVersion == 0 {
		t.Error("ClientVersion should not be zero")
	}
	if device.Device == "" || device.Model == "" {
		t.Error("Device and Model should not be empty")
	}
}

func TestDeviceTokenFor(t *testing.T) {
	a := deviceTokenFor(1, 2)
	if len(a) != 32 {
		t.Fatalf("device token length = %d, want 32", len(a))
	}
	if got := a.String(); !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(got) {
		t.Errorf("device token hex = %q", got)
	}
	if deviceTokenFor(1, 2).String() != a.String() {
		t.Error("device token is not stable for the same identity")
	}
	if deviceTokenFor(1, 3).String() == a.String() {
		t.Error("different security tokens produced the same device token")
	}
}
