// Package platform is a headless stand-in for the OS notification layer.
//
// A Host asks for notification permission, registers the device with the
// push transport, and delivers notifications to a pushbridge.Delegate the
// way a mobile OS would: foreground notifications wait on the delegate's
// presentation directive, taps wait on the delegate's completion, and both
// waits are bounded by a window after which the OS gives up.
package platform
