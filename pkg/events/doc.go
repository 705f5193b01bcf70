/*
Package events defines the broker's event vocabulary: the Event
envelope (key presses, mouse actions, screen resizes, inter-component
messages, focus transitions) and the Channel selectors each event kind
maps to. pkg/subscribe consumes Channel as its map key; pkg/processor
consumes Event.Channels() to find the subscriber lists an event must be
offered to.
*/
package events
