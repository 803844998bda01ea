// Package notify carries user-facing toast notifications. Failures that the
// user must hear about (a dropped stream, a failed save, an aborted
// selection edit) are raised once through a Notifier; nothing retries.
package notify
