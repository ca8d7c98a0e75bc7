// Package notifier sends push messages through a push.Transport with rate
// limiting, retry with jittered backoff and a dedup window.
//
// # Dedup
//
// A message sent to the same target with the same title and body inside the
// window is suppressed and reported as ErrDuplicate. With PersistDedup the
// window survives restarts through the storage layer.
//
// # History
//
// For operator visibility, the service keeps a small in-memory history of
// recently sent messages.
package notifier
