// Package pushbridge relays push-notification lifecycle events from the OS
// notification layer and a push-delivery provider to application observers.
//
// It includes the data model for device tokens, provider tokens and
// notification payloads, the Bridge that receives lifecycle callbacks, and
// observer sinks for logs, broadcasts and in-memory probes.
//
// The fcm subpackage provides the provider transport (device check-in,
// instance token registration and the MCS push connection), and the
// platform subpackage provides a headless host that plays the OS role.
//
// Usage:
//
//	b := pushbridge.New(host, fcmClient, pushbridge.NewLogSink(logger))
//	host.SetDelegate(b)
//	future, err := b.OnLaunch()
package pushbridge
