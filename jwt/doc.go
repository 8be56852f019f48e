// Package jwt reads claims from access tokens without verifying them.
//
// The client never holds the signing key, so nothing here is a security
// decision: claims are used for expiry hints, event subjects, and display.
package jwt
