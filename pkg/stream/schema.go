package stream

import (
	"encoding/json"
	"strconv"
	"time"
)

// EventKind is the schema-level event type carried in the payload envelope.
type EventKind string

const (
	KindItemListed          EventKind = "item_listed"
	KindItemSold            EventKind = "item_sold"
	KindItemTransferred     EventKind = "item_transferred"
	KindItemMetadataUpdated EventKind = "item_metadata_updated"
	KindItemCancelled       EventKind = "item_cancelled"
	KindItemReceivedOffer   EventKind = "item_received_offer"
	KindItemReceivedBid     EventKind = "item_received_bid"
	KindUnrecognized        EventKind = "unrecognized"
)

// Event is one decoded schema payload. Concrete types are the *Data structs
// below plus Unrecognized for event kinds this client does not know about.
type Event interface {
	Kind() EventKind
}

// StreamEvent is the decoded envelope of one broadcast frame.
type StreamEvent struct {
	// SentAt is when the server emitted the message.
	SentAt time.Time
	// Payload is the typed event. Never nil on a decoded StreamEvent.
	Payload Event
}

// Kind returns the kind of the enclosed payload.
func (e *StreamEvent) Kind() EventKind { return e.Payload.Kind() }

// CollectionRef identifies the collection an item belongs to.
type CollectionRef struct {
	Slug string `json:"slug"`
}

// ChainRef identifies the chain an item is on, e.g. {"name":"ethereum"}.
type ChainRef struct {
	Name string `json:"name"`
}

// Metadata is the basic item metadata per the metadata standards.
type Metadata struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url"`
	AnimationURL string `json:"animation_url"`
	MetadataURL  string `json:"metadata_url"`
}

// Item describes the token an event concerns.
type Item struct {
	// NftID is "chain/contract-address/token-id".
	NftID     string   `json:"nft_id"`
	Permalink string   `json:"permalink"`
	Chain     ChainRef `json:"chain"`
	Metadata  Metadata `json:"metadata"`
}

// Context is present in every event payload: the collection and the item.
type Context struct {
	Collection CollectionRef `json:"collection"`
	Item       Item          `json:"item"`
}

// Account is an address wrapped in an object on the wire: {"address":"0x.."}.
type Account struct {
	Address string `json:"address"`
}

// Transaction identifies an on-chain transaction.
type Transaction struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

// FlexFloat decodes a JSON number that the API serves either as a string or
// as a plain number.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(f), 'f', -1, 64))
}

// PaymentToken describes the token a listing is denominated in.
type PaymentToken struct {
	Address  string    `json:"address"`
	Decimals uint64    `json:"decimals"`
	EthPrice FlexFloat `json:"eth_price"`
	Name     string    `json:"name"`
	Symbol   string    `json:"symbol"`
	UsdPrice FlexFloat `json:"usd_price"`
}

// Listing auction types.
const (
	ListingEnglish = "english"
	ListingDutch   = "dutch"
)

// ItemListedData is the payload of an item_listed event. Prices are decimal
// strings in the token's base unit; they can exceed uint64 so they stay
// opaque.
type ItemListedData struct {
	Context

	EventTimestamp time.Time    `json:"event_timestamp"`
	BasePrice      string       `json:"base_price"`
	ExpirationDate time.Time    `json:"expiration_date"`
	IsPrivate      bool         `json:"is_private"`
	ListingDate    time.Time    `json:"listing_date"`
	ListingType    string       `json:"listing_type"` // empty means buyout
	Maker          Account      `json:"maker"`
	PaymentToken   PaymentToken `json:"payment_token"`
	Quantity       uint64       `json:"quantity"`
	Taker          *Account     `json:"taker"`
}

func (*ItemListedData) Kind() EventKind { return KindItemListed }

// ItemSoldData is the payload of an item_sold event.
type ItemSoldData struct {
	Context

	EventTimestamp time.Time    `json:"event_timestamp"`
	ClosingDate    time.Time    `json:"closing_date"`
	IsPrivate      bool         `json:"is_private"`
	ListingType    string       `json:"listing_type"`
	Maker          Account      `json:"maker"`
	PaymentToken   PaymentToken `json:"payment_token"`
	Quantity       uint64       `json:"quantity"`
	SalePrice      string       `json:"sale_price"`
	Taker          Account      `json:"taker"`
	Transaction    Transaction  `json:"transaction"`
}

func (*ItemSoldData) Kind() EventKind { return KindItemSold }

// ItemTransferredData is the payload of an item_transferred event.
type ItemTransferredData struct {
	Context

	EventTimestamp time.Time   `json:"event_timestamp"`
	Transaction    Transaction `json:"transaction"`
	FromAccount    Account     `json:"from_account"`
	ToAccount      Account     `json:"to_account"`
	Quantity       uint64      `json:"quantity"`
}

func (*ItemTransferredData) Kind() EventKind { return KindItemTransferred }

// ItemMetadataUpdatedData is the payload of an item_metadata_updated event.
type ItemMetadataUpdatedData struct {
	Context

	Name            string            `json:"name"`
	Description     string            `json:"description"`
	ImagePreviewURL string            `json:"image_preview_url"`
	AnimationURL    string            `json:"animation_url"`
	BackgroundColor string            `json:"background_color"`
	MetadataURL     string            `json:"metadata_url"`
	Traits          []json.RawMessage `json:"traits"`
}

func (*ItemMetadataUpdatedData) Kind() EventKind { return KindItemMetadataUpdated }

// ItemCancelledData is the payload of an item_cancelled event.
type ItemCancelledData struct {
	Context

	EventTimestamp time.Time    `json:"event_timestamp"`
	ListingType    string       `json:"listing_type"`
	PaymentToken   PaymentToken `json:"payment_token"`
	Quantity       uint64       `json:"quantity"`
	Transaction    Transaction  `json:"transaction"`
}

func (*ItemCancelledData) Kind() EventKind { return KindItemCancelled }

// ItemReceivedOfferData is the payload of an item_received_offer event.
type ItemReceivedOfferData struct {
	Context

	EventTimestamp time.Time    `json:"event_timestamp"`
	BasePrice      string       `json:"base_price"`
	CreatedDate    time.Time    `json:"created_date"`
	ExpirationDate time.Time    `json:"expiration_date"`
	Maker          Account      `json:"maker"`
	PaymentToken   PaymentToken `json:"payment_token"`
	Quantity       uint64       `json:"quantity"`
	Taker          *Account     `json:"taker"`
}

func (*ItemReceivedOfferData) Kind() EventKind { return KindItemReceivedOffer }

// ItemReceivedBidData is the payload of an item_received_bid event.
type ItemReceivedBidData struct {
	Context

	EventTimestamp time.Time    `json:"event_timestamp"`
	BasePrice      string       `json:"base_price"`
	CreatedDate    time.Time    `json:"created_date"`
	ExpirationDate time.Time    `json:"expiration_date"`
	Maker          Account      `json:"maker"`
	PaymentToken   PaymentToken `json:"payment_token"`
	Quantity       uint64       `json:"quantity"`
	Taker          *Account     `json:"taker"`
}

func (*ItemReceivedBidData) Kind() EventKind { return KindItemReceivedBid }

// Unrecognized carries an event kind this client does not know about. New
// kinds the API grows are delivered through it instead of failing.
type Unrecognized struct {
	EventType string
	Payload   json.RawMessage
}

func (*Unrecognized) Kind() EventKind { return KindUnrecognized }
