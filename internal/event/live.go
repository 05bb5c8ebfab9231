// Package event defines the typed messages that enter the monitor: events
// pushed by the live channel and messages exchanged over the cross-process
// relay. Payloads are validated and narrowed here so nothing downstream has
// to probe for field presence.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/abelbrown/vinewatch/internal/model"
)

var (
	// ErrMissingASIN marks an item-carrying event without an ASIN.
	ErrMissingASIN = errors.New("event: missing asin")
	// ErrUnknownType marks a frame whose type is not recognised.
	ErrUnknownType = errors.New("event: unknown type")
)

// LiveType names a live event.
type LiveType string

const (
	TypeNewItem         LiveType = "newItem"
	TypeNewETV          LiveType = "newETV"
	TypeNewVariants     LiveType = "newVariants"
	TypeUnavailableItem LiveType = "unavailableItem"
	TypeLast100         LiveType = "last100"
	TypeReloadPage      LiveType = "reloadPage"
)

// Live is implemented by every live event variant.
type Live interface {
	Type() LiveType
}

// NewItem announces a new listing.
type NewItem struct {
	Item model.Item
}

// NewETV carries an estimated-value update for an existing listing.
type NewETV struct {
	ASIN   string
	ETVMin float64
	ETVMax float64
}

// NewVariants carries the variant list of a parent listing.
type NewVariants struct {
	ASIN     string
	Title    string
	Variants []model.Variant
}

// UnavailableItem reports a listing that can no longer be ordered.
type UnavailableItem struct {
	ASIN string
}

// Last100 is a bulk snapshot of the most recent listings, newest first.
type Last100 struct {
	Items []model.Item
}

// ReloadPage asks the client to resynchronise.
type ReloadPage struct{}

func (NewItem) Type() LiveType         { return TypeNewItem }
func (NewETV) Type() LiveType          { return TypeNewETV }
func (NewVariants) Type() LiveType     { return TypeNewVariants }
func (UnavailableItem) Type() LiveType { return TypeUnavailableItem }
func (Last100) Type() LiveType         { return TypeLast100 }
func (ReloadPage) Type() LiveType      { return TypeReloadPage }

// frame is the wire shape of a live message.
type frame struct {
	Type LiveType        `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type etvPayload struct {
	ASIN   string   `json:"asin"`
	ETV    *float64 `json:"etv,omitempty"`
	ETVMin *float64 `json:"etv_min,omitempty"`
	ETVMax *float64 `json:"etv_max,omitempty"`
}

type variantsPayload struct {
	ASIN     string          `json:"asin"`
	Title    string          `json:"title,omitempty"`
	Variants []model.Variant `json:"variants"`
}

type asinPayload struct {
	ASIN string `json:"asin"`
}

type last100Payload struct {
	Products []model.Item `json:"products"`
}

// DecodeLive parses one live frame into its typed variant.
//
// Items inside a Last100 batch that lack an ASIN are dropped rather than
// failing the whole batch; the count of dropped entries is not reported
// because the periodic catch-up fetch covers any gap.
func DecodeLive(data []byte) (Live, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case TypeNewItem:
		var it model.Item
		if err := unmarshalData(f.Data, &it); err != nil {
			return nil, err
		}
		it.ASIN = strings.TrimSpace(it.ASIN)
		if it.ASIN == "" {
			return nil, ErrMissingASIN
		}
		return NewItem{Item: it}, nil

	case TypeNewETV:
		var p etvPayload
		if err := unmarshalData(f.Data, &p); err != nil {
			return nil, err
		}
		if p.ASIN == "" {
			return nil, ErrMissingASIN
		}
		ev := NewETV{ASIN: p.ASIN}
		switch {
		case p.ETVMin != nil && p.ETVMax != nil:
			ev.ETVMin, ev.ETVMax = *p.ETVMin, *p.ETVMax
		case p.ETV != nil:
			ev.ETVMin, ev.ETVMax = *p.ETV, *p.ETV
		case p.ETVMin != nil:
			ev.ETVMin, ev.ETVMax = *p.ETVMin, *p.ETVMin
		case p.ETVMax != nil:
			ev.ETVMin, ev.ETVMax = *p.ETVMax, *p.ETVMax
		default:
			return nil, fmt.Errorf("decode %s: no etv value", f.Type)
		}
		if ev.ETVMin > ev.ETVMax {
			ev.ETVMin, ev.ETVMax = ev.ETVMax, ev.ETVMin
		}
		return ev, nil

	case TypeNewVariants:
		var p variantsPayload
		if err := unmarshalData(f.Data, &p); err != nil {
			return nil, err
		}
		if p.ASIN == "" {
			return nil, ErrMissingASIN
		}
		return NewVariants{ASIN: p.ASIN, Title: p.Title, Variants: p.Variants}, nil

	case TypeUnavailableItem:
		var p asinPayload
		if err := unmarshalData(f.Data, &p); err != nil {
			return nil, err
		}
		if p.ASIN == "" {
			return nil, ErrMissingASIN
		}
		return UnavailableItem{ASIN: p.ASIN}, nil

	case TypeLast100:
		var p last100Payload
		if err := unmarshalData(f.Data, &p); err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(p.Products))
		for _, it := range p.Products {
			it.ASIN = strings.TrimSpace(it.ASIN)
			if it.ASIN == "" {
				continue
			}
			items = append(items, it)
		}
		return Last100{Items: items}, nil

	case TypeReloadPage:
		return ReloadPage{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
}

// EncodeLive serialises a live event into its wire frame. The reverse of
// DecodeLive; used by test servers and the relay of raw events.
func EncodeLive(ev Live) ([]byte, error) {
	var data any
	switch e := ev.(type) {
	case NewItem:
		data = e.Item
	case NewETV:
		data = etvPayload{ASIN: e.ASIN, ETVMin: model.Float(e.ETVMin), ETVMax: model.Float(e.ETVMax)}
	case NewVariants:
		data = variantsPayload{ASIN: e.ASIN, Title: e.Title, Variants: e.Variants}
	case UnavailableItem:
		data = asinPayload{ASIN: e.ASIN}
	case Last100:
		data = last100Payload{Products: e.Items}
	case ReloadPage:
		data = struct{}{}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return json.Marshal(frame{Type: ev.Type(), Data: raw})
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("decode frame: empty data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode frame data: %w", err)
	}
	return nil
}
