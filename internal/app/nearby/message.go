/*
Package nearby implements the Nearby discovery service.

Signed-in clients connect over a websocket to a vicinity, a short code standing in for
physical proximity. Within a vicinity a client may publish one opaque message and may
subscribe to everyone else's. Subscribers are told when a message is FOUND and when it
is LOST (unpublished, expired, or its publisher disconnected). Every publish and
subscribe request is answered by a STATUS frame: success, needs-resolution, or failure.

This file defines the websocket frames shared by the server and the session client.
*/
package nearby

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType names a websocket frame.
type MessageType string

const (
	// client → server
	TypePublish     MessageType = "PUBLISH"
	TypeUnpublish   MessageType = "UNPUBLISH"
	TypeSubscribe   MessageType = "SUBSCRIBE"
	TypeUnsubscribe MessageType = "UNSUBSCRIBE"

	// server → client
	TypeWelcome MessageType = "WELCOME"
	TypeStatus  MessageType = "STATUS"
	TypeFound   MessageType = "FOUND"
	TypeLost    MessageType = "LOST"
	TypeExpired MessageType = "EXPIRED"
	TypeError   MessageType = "ERROR"
)

// Operation identifies the request a STATUS or EXPIRED frame refers to.
type Operation string

const (
	OpPublish     Operation = "publish"
	OpUnpublish   Operation = "unpublish"
	OpSubscribe   Operation = "subscribe"
	OpUnsubscribe Operation = "unsubscribe"
)

// StatusCode is the outcome of a request.
type StatusCode string

const (
	StatusSuccess         StatusCode = "SUCCESS"
	StatusNeedsResolution StatusCode = "NEEDS_RESOLUTION"
	StatusFailure         StatusCode = "FAILURE"
)

// ResolutionNearbyOptIn asks the user to allow Nearby for their account.
const ResolutionNearbyOptIn = "NEARBY_OPT_IN"

const (
	// MaxPayloadBytes is the largest message content a client may publish.
	MaxPayloadBytes = 3 * 1024

	// DefaultTTL applies when a request carries no TTL.
	DefaultTTL = 5 * time.Minute

	// MaxTTL caps requested TTLs.
	MaxTTL = 24 * time.Hour
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a frame of type t.
func NewFrame(t MessageType, requestID string, payload any) (Frame, error) {
	f := Frame{Type: t, RequestID: requestID}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		f.Payload = raw
	}

	return f, nil
}

// PublishPayload is sent with PUBLISH. Content is base64 on the wire.
type PublishPayload struct {
	Content    []byte `json:"content"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
}

// SubscribePayload is sent with SUBSCRIBE.
type SubscribePayload struct {
	TTLSeconds int `json:"ttlSeconds,omitempty"`
}

// MessagePayload carries the content of a FOUND or LOST message.
type MessagePayload struct {
	Content []byte `json:"content"`
}

// Status is the outcome of a publish/subscribe request.
type Status struct {
	Op         Operation  `json:"op"`
	Code       StatusCode `json:"code"`
	Message    string     `json:"message,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
}

// IsSuccess reports a successful request.
func (s Status) IsSuccess() bool {
	return s.Code == StatusSuccess
}

// HasResolution reports whether the user can resolve the failure.
func (s Status) HasResolution() bool {
	return s.Code == StatusNeedsResolution && s.Resolution != ""
}

// ExpiredPayload is sent when a publication or subscription reaches its TTL.
type ExpiredPayload struct {
	Op Operation `json:"op"`
}

// WelcomePayload is the first frame of a session.
type WelcomePayload struct {
	SessionID string `json:"sessionId"`
	Vicinity  string `json:"vicinity"`
}

// ErrorPayload reports a protocol error not tied to a request outcome.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TTLFromSeconds converts a requested TTL, applying DefaultTTL and MaxTTL.
func TTLFromSeconds(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		if fallback > 0 {
			return fallback
		}
		return DefaultTTL
	}

	ttl := time.Duration(seconds) * time.Second
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}
