package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// ResourceType classifies a cache entry's payload. The persistence
// policy and type-scoped clearing operate on this closed set.
type ResourceType string

const (
	TypeAudioBuffer ResourceType = "audio_buffer"
	TypeImage       ResourceType = "image"
	TypeJSON        ResourceType = "json"
	TypeBinary      ResourceType = "binary"
	TypeText        ResourceType = "text"
	TypePreloaded   ResourceType = "preloaded"
	TypePredicted   ResourceType = "predicted"
	TypeTemp        ResourceType = "temp"
	TypeSession     ResourceType = "session"
	TypeUnknown     ResourceType = "unknown"
)

// PayloadKind identifies the concrete payload representation on the wire.
type PayloadKind string

const (
	KindBytes  PayloadKind = "bytes"
	KindText   PayloadKind = "text"
	KindImage  PayloadKind = "image"
	KindObject PayloadKind = "object"
)

// Payload is the value stored in a cache entry. Size is estimated per
// variant, never measured exactly; Encode produces the byte form the
// durable and network tiers persist.
type Payload interface {
	Kind() PayloadKind
	EstimatedSize() int64
	Encode() ([]byte, error)
}

// BytesPayload is a raw binary payload. Estimated size is the exact
// byte length.
type BytesPayload []byte

func (p BytesPayload) Kind() PayloadKind    { return KindBytes }
func (p BytesPayload) EstimatedSize() int64 { return int64(len(p)) }
func (p BytesPayload) Encode() ([]byte, error) {
	return []byte(p), nil
}

// TextPayload is a textual payload. Estimated size is two bytes per
// character.
type TextPayload string

func (p TextPayload) Kind() PayloadKind    { return KindText }
func (p TextPayload) EstimatedSize() int64 { return 2 * int64(utf8.RuneCountInString(string(p))) }
func (p TextPayload) Encode() ([]byte, error) {
	return []byte(p), nil
}

// ImagePayload is decoded image data with known dimensions. Estimated
// size is width × height × 4 (RGBA), regardless of the encoded length.
type ImagePayload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"data"`
}

func (p ImagePayload) Kind() PayloadKind    { return KindImage }
func (p ImagePayload) EstimatedSize() int64 { return int64(p.Width) * int64(p.Height) * 4 }
func (p ImagePayload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// ObjectPayload wraps an arbitrary JSON-serializable value. Estimated
// size is twice the serialized length.
type ObjectPayload struct {
	Value interface{}
}

func (p ObjectPayload) Kind() PayloadKind { return KindObject }

func (p ObjectPayload) EstimatedSize() int64 {
	data, err := json.Marshal(p.Value)
	if err != nil {
		return 0
	}
	return 2 * int64(len(data))
}

func (p ObjectPayload) Encode() ([]byte, error) {
	return json.Marshal(p.Value)
}

// DecodePayload reconstructs a payload from its encoded form. The kind
// tag must match the one recorded when the payload was encoded.
func DecodePayload(kind PayloadKind, data []byte) (Payload, error) {
	switch kind {
	case KindBytes:
		buf := make([]byte, len(data))
		copy(buf, data)
		return BytesPayload(buf), nil
	case KindText:
		return TextPayload(data), nil
	case KindImage:
		var img ImagePayload
		if err := json.Unmarshal(data, &img); err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		return img, nil
	case KindObject:
		var value interface{}
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("decode object payload: %w", err)
		}
		return ObjectPayload{Value: value}, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}

// CacheEntry is the value object shared by all tiers.
type CacheEntry struct {
	Key       string            `json:"key"`
	Payload   Payload           `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
	TTL       time.Duration     `json:"ttl"`
	Type      ResourceType      `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EstimatedSize reports the payload's heuristic size in bytes.
func (e *CacheEntry) EstimatedSize() int64 {
	if e.Payload == nil {
		return 0
	}
	return e.Payload.EstimatedSize()
}

// Expired reports whether the entry is past its TTL at the given time.
// A zero or negative TTL never expires.
func (e *CacheEntry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > e.TTL
}

// WireEntry is the envelope the durable and network tiers persist. The
// payload travels as its encoded bytes plus a kind tag so the tiers stay
// payload-transparent.
type WireEntry struct {
	Key       string            `json:"key"`
	Kind      PayloadKind       `json:"kind"`
	Type      ResourceType      `json:"type"`
	CreatedAt time.Time         `json:"created_at"`
	TTL       time.Duration     `json:"ttl"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Payload   []byte            `json:"-"`
}

type wireEntryJSON struct {
	Key       string            `json:"key"`
	Kind      PayloadKind       `json:"kind"`
	Type      ResourceType      `json:"type"`
	CreatedAt time.Time         `json:"created_at"`
	TTL       time.Duration     `json:"ttl"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Payload   string            `json:"payload"`
}

// MarshalJSON base64-encodes the payload bytes explicitly so the wire
// format is stable across payload kinds.
func (w WireEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEntryJSON{
		Key:       w.Key,
		Kind:      w.Kind,
		Type:      w.Type,
		CreatedAt: w.CreatedAt,
		TTL:       w.TTL,
		Metadata:  w.Metadata,
		Payload:   base64.StdEncoding.EncodeToString(w.Payload),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (w *WireEntry) UnmarshalJSON(data []byte) error {
	var aux wireEntryJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(aux.Payload)
	if err != nil {
		return fmt.Errorf("decode payload bytes: %w", err)
	}
	w.Key = aux.Key
	w.Kind = aux.Kind
	w.Type = aux.Type
	w.CreatedAt = aux.CreatedAt
	w.TTL = aux.TTL
	w.Metadata = aux.Metadata
	w.Payload = raw
	return nil
}

// ToWire converts an entry to its persisted envelope.
func (e *CacheEntry) ToWire() (*WireEntry, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("entry %q has no payload", e.Key)
	}
	data, err := e.Payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode payload for %q: %w", e.Key, err)
	}
	return &WireEntry{
		Key:       e.Key,
		Kind:      e.Payload.Kind(),
		Type:      e.Type,
		CreatedAt: e.CreatedAt,
		TTL:       e.TTL,
		Metadata:  e.Metadata,
		Payload:   data,
	}, nil
}

// FromWire reconstructs a cache entry from its persisted envelope.
func FromWire(w *WireEntry) (*CacheEntry, error) {
	payload, err := DecodePayload(w.Kind, w.Payload)
	if err != nil {
		return nil, err
	}
	return &CacheEntry{
		Key:       w.Key,
		Payload:   payload,
		CreatedAt: w.CreatedAt,
		TTL:       w.TTL,
		Type:      w.Type,
		Metadata:  w.Metadata,
	}, nil
}

// TierStats represents cache performance statistics for a single tier.
type TierStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// CacheStats aggregates per-tier statistics with an overall view. The
// overall hit rate counts a lookup as a hit if any tier served it.
type CacheStats struct {
	Memory      TierStats `json:"memory"`
	Durable     TierStats `json:"durable"`
	Remote      TierStats `json:"remote"`
	OverallRate float64   `json:"overall_hit_rate"`
	TrackedKeys int       `json:"tracked_keys"`
}
