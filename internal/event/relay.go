package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/abelbrown/vinewatch/internal/model"
)

// RelayType names a cross-process relay message.
type RelayType string

const (
	RelayPreprocessedItem RelayType = "newPreprocessedItem"
	RelayLast100          RelayType = "last100"
	RelayETV              RelayType = "newETV"
	RelayVariants         RelayType = "newVariants"
	RelayUnavailable      RelayType = "unavailableItem"
	RelayStatus           RelayType = "wsStatus"
	RelayFetchRequest     RelayType = "fetchAutoLoadUrl"
)

// Payload is implemented by every relay message variant.
type Payload interface {
	RelayType() RelayType
}

// PreprocessedItem is an item that already went through the master's
// filter pipeline. Receivers must not process it again.
type PreprocessedItem struct {
	Item model.Item `json:"item"`
}

// Batch is a processed Last100 snapshot or catch-up fetch, newest first.
type Batch struct {
	Items []model.Item `json:"items"`
}

// ETVUpdate mirrors NewETV for relay.
type ETVUpdate struct {
	ASIN   string  `json:"asin"`
	ETVMin float64 `json:"etv_min"`
	ETVMax float64 `json:"etv_max"`
}

// VariantsUpdate mirrors NewVariants for relay.
type VariantsUpdate struct {
	ASIN     string          `json:"asin"`
	Title    string          `json:"title,omitempty"`
	Variants []model.Variant `json:"variants"`
}

// Unavailable mirrors UnavailableItem for relay.
type Unavailable struct {
	ASIN string `json:"asin"`
}

// Status carries the master's live connection state.
type Status struct {
	State string `json:"state"`
	Err   string `json:"err,omitempty"`
}

// FetchRequest asks the master to run a catch-up fetch.
type FetchRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (PreprocessedItem) RelayType() RelayType { return RelayPreprocessedItem }
func (Batch) RelayType() RelayType            { return RelayLast100 }
func (ETVUpdate) RelayType() RelayType        { return RelayETV }
func (VariantsUpdate) RelayType() RelayType   { return RelayVariants }
func (Unavailable) RelayType() RelayType      { return RelayUnavailable }
func (Status) RelayType() RelayType           { return RelayStatus }
func (FetchRequest) RelayType() RelayType     { return RelayFetchRequest }

// Message is one relay envelope.
type Message struct {
	Sender  string
	Sent    time.Time
	Payload Payload
}

// Type returns the payload's relay type.
func (m Message) Type() RelayType {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.RelayType()
}

type envelope struct {
	Type   RelayType       `json:"type"`
	Sender string          `json:"sender"`
	Sent   time.Time       `json:"sent"`
	Data   json.RawMessage `json:"data"`
}

// EncodeMessage serialises a relay message.
func EncodeMessage(m Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("encode relay message: nil payload")
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return json.Marshal(envelope{Type: m.Type(), Sender: m.Sender, Sent: m.Sent, Data: data})
}

// DecodeMessage parses a relay envelope into its typed payload.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode relay envelope: %w", err)
	}

	var p Payload
	switch env.Type {
	case RelayPreprocessedItem:
		var v PreprocessedItem
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if v.Item.ASIN == "" {
			return Message{}, ErrMissingASIN
		}
		p = v
	case RelayLast100:
		var v Batch
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		p = v
	case RelayETV:
		var v ETVUpdate
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		p = v
	case RelayVariants:
		var v VariantsUpdate
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		p = v
	case RelayUnavailable:
		var v Unavailable
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		p = v
	case RelayStatus:
		var v Status
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		p = v
	case RelayFetchRequest:
		var v FetchRequest
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &v); err != nil {
				return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
			}
		}
		p = v
	default:
		return Message{}, fmt.Errorf("%w: relay %q", ErrUnknownType, env.Type)
	}

	return Message{Sender: env.Sender, Sent: env.Sent, Payload: p}, nil
}
