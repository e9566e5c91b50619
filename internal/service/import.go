package service

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// decodeObject returns the top-level fields of raw, or false when raw is
// not a JSON object.
func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// normalizeImport coerces one imported object into an Offer.
//
// For a new offer every field is taken from the object with defaults for
// what is missing or malformed. For an existing offer (exists=true) only the
// fields present in the object overwrite base, and the status is applied
// only while base is still pending so terminal offers stay terminal.
func normalizeImport(fields map[string]json.RawMessage, base domain.Offer, exists bool, now time.Time, expiry time.Duration) domain.Offer {
	o := base
	if !exists {
		o = domain.Offer{Status: domain.OfferPending}
	}

	if v, ok := stringField(fields, "id"); ok {
		o.ID = v
	}
	for key, dst := range map[string]*string{
		"playerId":     &o.PlayerID,
		"playerName":   &o.PlayerName,
		"fromClubId":   &o.FromClubID,
		"fromClubName": &o.FromClubName,
		"toClubId":     &o.ToClubID,
		"toClubName":   &o.ToClubName,
		"rejectReason": &o.RejectReason,
	} {
		if v, ok := stringField(fields, key); ok {
			*dst = v
		}
	}

	if raw, ok := firstField(fields, "amount", "fee"); ok {
		o.Amount = coerceAmount(raw)
	} else if !exists {
		o.Amount = 0
	}

	if raw, ok := fields["status"]; ok {
		next := coerceStatus(raw)
		if !exists || base.Status == domain.OfferPending {
			o.Status = next
		}
	}

	if raw, ok := fields["createdAt"]; ok {
		if t, ok := coerceTime(raw); ok {
			o.CreatedAt = t
		}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if raw, ok := fields["expiresAt"]; ok {
		if t, ok := coerceTime(raw); ok {
			o.ExpiresAt = t
		}
	}
	if !o.ExpiresAt.After(o.CreatedAt) {
		o.ExpiresAt = o.CreatedAt.Add(expiry)
	}
	if o.Status != domain.OfferRejected {
		o.RejectReason = ""
	}
	return o
}

func firstField(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := fields[k]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// coerceAmount accepts a JSON number or a numeric string. Anything else,
// and any negative value, becomes 0.
func coerceAmount(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		f = parsed
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func coerceStatus(raw json.RawMessage) domain.OfferStatus {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.OfferPending
	}
	st := domain.OfferStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return domain.OfferPending
	}
	return st
}

// coerceTime accepts an RFC 3339 string or unix milliseconds.
func coerceTime(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
