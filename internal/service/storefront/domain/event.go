package domain

import "time"

// EventType 领域事件类型, 同时作为消息主题内的路由键。
type EventType string

const (
	EventOfferApplied   EventType = "offer.applied"
	EventOfferRemoved   EventType = "offer.removed"
	EventOfferRevoked   EventType = "offer.revoked"
	EventOffersExpired  EventType = "offers.expired"
	EventOrderPlaced    EventType = "order.placed"
	EventOrderCancelled EventType = "order.cancelled"
)

// Event 是对外发布的领域事件。Key 决定分区, 同一购物车或订单的事件保持有序。
type Event struct {
	Type       EventType      `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

func NewEvent(t EventType, key string, now time.Time, payload map[string]any) Event {
	return Event{Type: t, Key: key, OccurredAt: now, Payload: payload}
}
