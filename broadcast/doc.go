// Package broadcast implements the hub's publish/subscribe event channel.
// Listeners receive lifecycle events through bounded per-subscriber buffers;
// a slow or failed listener drops events instead of blocking the operation
// that published them, so broadcasting stays isolated from orchestration
// outcomes. Events published for the same source id are delivered in publish
// order relative to each other.
package broadcast
