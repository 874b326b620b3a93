// Package events fans out reduction progress to live subscribers.
//
// The HTTP layer publishes an Event for every probe, attempt and finished
// request, and each websocket client on /api/events holds a subscription.
// Publishing never blocks: a subscriber that falls behind loses events
// rather than stalling a reduction.
package events
