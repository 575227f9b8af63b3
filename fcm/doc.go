// Package fcm is the push-delivery provider transport for the bridge.
//
// It performs the device check-in that yields the device identity (and so
// the device token), registers for a provider instance token, and runs an
// MCS (Mobile Connection Server) client that receives push notifications
// and token reset commands.
//
// Usage:
//
//	client := fcm.NewClient(fcm.WithSenderID(senderID))
//	client.OnNotification(func(n pushbridge.Notification) { ... })
//	client.OnToken(bridge.OnProviderTokenReceived)
//	token, err := client.Register(ctx)
//	err = client.Listen(ctx)
//
// Credentials live in memory only. A new process checks in afresh.
package fcm
