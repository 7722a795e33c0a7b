package permissions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingID indicates a wire record without a usable numeric identifier.
var ErrMissingID = errors.New("permissions: record has no valid id")

// Record is a staff record as it arrives on the wire. Flag fields may be booleans,
// stringified booleans or 0/1 numbers.
type Record map[string]any

const (
	fieldID          = "id"
	fieldUsername    = "username"
	fieldFirstName   = "first_name"
	fieldLastName    = "last_name"
	fieldEmail       = "email"
	fieldIsSuperuser = "is_superuser"
	fieldAvatar      = "avatar"
	fieldAvatarURL   = "avatar_url"
)

// NormalizeBool is the single coercion rule for loosely typed wire booleans: true,
// "true" (any case), "1" and numeric 1 are true; anything else is false.
func NormalizeBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		return s == "true" || s == "1"
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 1
	case float64:
		return val == 1
	case float32:
		return val == 1
	case int:
		return val == 1
	case int8:
		return val == 1
	case int16:
		return val == 1
	case int32:
		return val == 1
	case int64:
		return val == 1
	case uint:
		return val == 1
	case uint8:
		return val == 1
	case uint16:
		return val == 1
	case uint32:
		return val == 1
	case uint64:
		return val == 1
	default:
		return false
	}
}

// DecodeRecord parses a JSON object keeping numbers exact.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("permissions: decode record: %w", err)
	}
	if rec == nil {
		return nil, ErrMissingID
	}
	return rec, nil
}

// DecodeIdentity normalizes a wire record into an Identity. Flags absent from the record
// are stored as false.
func DecodeIdentity(raw Record) (Identity, error) {
	id, ok := toInt64(raw[fieldID])
	if !ok || id <= 0 {
		return Identity{}, ErrMissingID
	}
	base := Identity{ID: id, Flags: make(Flags, len(allCapabilities))}
	for _, c := range allCapabilities {
		base.Flags[c] = false
	}
	return MergeRecord(base, raw), nil
}

// MergeRecord overlays the fields present in raw onto base. The identifier is never
// changed by a merge.
func MergeRecord(base Identity, raw Record) Identity {
	out := *base.Clone()
	if out.Flags == nil {
		out.Flags = make(Flags, len(allCapabilities))
	}
	if v, ok := raw[fieldUsername]; ok {
		out.Username = toString(v)
	}
	if v, ok := raw[fieldFirstName]; ok {
		out.FirstName = toString(v)
	}
	if v, ok := raw[fieldLastName]; ok {
		out.LastName = toString(v)
	}
	if v, ok := raw[fieldEmail]; ok {
		out.Email = toString(v)
	}
	if v, ok := raw[fieldIsSuperuser]; ok {
		out.IsSuperuser = NormalizeBool(v)
	}
	if v, ok := raw[fieldAvatarURL]; ok {
		out.AvatarURL = toString(v)
	} else if v, ok := raw[fieldAvatar]; ok {
		out.AvatarURL = toString(v)
	}
	for _, c := range allCapabilities {
		if v, ok := raw[string(c)]; ok {
			out.Flags[c] = NormalizeBool(v)
		}
	}
	return out
}

// Record renders the canonical wire form of the identity.
func (i Identity) Record() Record {
	rec := Record{
		fieldID:          i.ID,
		fieldUsername:    i.Username,
		fieldFirstName:   i.FirstName,
		fieldLastName:    i.LastName,
		fieldEmail:       i.Email,
		fieldIsSuperuser: i.IsSuperuser,
	}
	if i.AvatarURL != "" {
		rec[fieldAvatarURL] = i.AvatarURL
	}
	for _, c := range allCapabilities {
		rec[string(c)] = i.Flag(c)
	}
	return rec
}

// MarshalJSON emits the canonical flat form with strict booleans.
func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Record())
}

// UnmarshalJSON accepts the loosely typed wire form.
func (i *Identity) UnmarshalJSON(data []byte) error {
	rec, err := DecodeRecord(data)
	if err != nil {
		return err
	}
	decoded, err := DecodeIdentity(rec)
	if err != nil {
		return err
	}
	*i = decoded
	return nil
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		return n, err == nil
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
