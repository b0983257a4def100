// Package events defines the task lifecycle events pushed to live client
// connections, and the Notifier boundary that decouples the scheduler and
// services from the websocket hub that delivers them.
package events
