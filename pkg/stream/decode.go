package stream

import (
	"encoding/json"
	"time"
)

// envelope is the wire shape of a broadcast payload.
type envelope struct {
	EventType string          `json:"event_type"`
	SentAt    time.Time       `json:"sent_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode maps a raw broadcast payload to a typed event. It is total: an
// absent or unintelligible payload yields (nil, false); a well-formed
// envelope with an unknown or mismatching event type decodes to
// *Unrecognized. It never returns an error, has no state and no side
// effects.
func Decode(raw json.RawMessage) (*StreamEvent, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.EventType == "" {
		return nil, false
	}

	ev := &StreamEvent{SentAt: env.SentAt}
	ev.Payload = decodePayload(env.EventType, env.Payload)
	return ev, true
}

func decodePayload(eventType string, payload json.RawMessage) Event {
	var data Event
	switch EventKind(eventType) {
	case KindItemListed:
		data = &ItemListedData{}
	case KindItemSold:
		data = &ItemSoldData{}
	case KindItemTransferred:
		data = &ItemTransferredData{}
	case KindItemMetadataUpdated:
		data = &ItemMetadataUpdatedData{}
	case KindItemCancelled:
		data = &ItemCancelledData{}
	case KindItemReceivedOffer:
		data = &ItemReceivedOfferData{}
	case KindItemReceivedBid:
		data = &ItemReceivedBidData{}
	default:
		return &Unrecognized{EventType: eventType, Payload: payload}
	}

	if err := json.Unmarshal(payload, data); err != nil {
		// Known tag but unexpected shape: forward compatibility beats
		// failing the caller's receive loop.
		return &Unrecognized{EventType: eventType, Payload: payload}
	}
	return data
}
