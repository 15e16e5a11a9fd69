// Package codec converts between typed chat messages and the flat records
// kept in the store.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"chat-sync/internal/models"
)

// DateLayout renders dates as "May 08, 2023 at 4:05:06 PM UTC".
const DateLayout = "Jan 02, 2006 at 3:04:05 PM MST"

var (
	ErrUnknownType     = errors.New("unknown message type")
	ErrInvalidContent  = errors.New("invalid message content")
	ErrInvalidDate     = errors.New("invalid message date")
	ErrMissingField    = errors.New("missing required field")
	ErrMalformedRecord = errors.New("malformed record")
)

var validate = validator.New()

// FormatDate formats t in UTC so that ParseDate recovers it to the second.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a date written by FormatDate. Dates from older clients
// may carry a local zone abbreviation; the ones in zoneOffsets are read at
// their standard offset and any other abbreviation is read as UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	name, offset := t.Zone()
	if offset != 0 {
		return t, nil
	}
	if hours, ok := zoneOffsets[name]; ok {
		secs := int(hours * 3600)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.FixedZone(name, secs)), nil
	}
	return t, nil
}

// zoneOffsets maps zone abbreviations to hours east of UTC. Ambiguous
// abbreviations take their North American or Indian meaning.
var zoneOffsets = map[string]float64{
	"UTC": 0, "GMT": 0,
	"HST": -10, "AKST": -9, "AKDT": -8,
	"PST": -8, "PDT": -7,
	"MST": -7, "MDT": -6,
	"CST": -6, "CDT": -5,
	"EST": -5, "EDT": -4,
	"AST": -4, "ADT": -3,
	"NST": -3.5, "NDT": -2.5,
	"BST": 1, "WET": 0, "WEST": 1,
	"CET": 1, "CEST": 2,
	"EET": 2, "EEST": 3,
	"MSK": 3, "IST": 5.5,
	"HKT": 8, "SGT": 8, "AWST": 8,
	"JST": 9, "KST": 9,
	"ACST": 9.5, "ACDT": 10.5,
	"AEST": 10, "AEDT": 11,
	"NZST": 12, "NZDT": 13,
}

// EncodeContent returns the stored type and content strings of c.
func EncodeContent(c models.Content) (string, string, error) {
	switch v := c.(type) {
	case models.TextContent:
		return string(models.KindText), v.Text, nil
	case models.PhotoContent:
		if err := checkURL(v.URL); err != nil {
			return "", "", err
		}
		return string(models.KindPhoto), v.URL, nil
	case models.VideoContent:
		if err := checkURL(v.URL); err != nil {
			return "", "", err
		}
		return string(models.KindVideo), v.URL, nil
	case models.LocationContent:
		if err := checkCoordinates(v.Longitude, v.Latitude); err != nil {
			return "", "", err
		}
		return string(models.KindLocation), formatFloat(v.Longitude) + "," + formatFloat(v.Latitude), nil
	case models.UnsupportedContent:
		if !isPayloadless(v.Type) {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownType, v.Type)
		}
		return string(v.Type), "", nil
	case nil:
		return "", "", fmt.Errorf("%w: no content", ErrInvalidContent)
	default:
		return "", "", fmt.Errorf("%w: %T", ErrUnknownType, c)
	}
}

// DecodeContent rebuilds typed content from its stored type and content.
func DecodeContent(kind, content string) (models.Content, error) {
	switch models.Kind(kind) {
	case models.KindText:
		return models.TextContent{Text: content}, nil
	case models.KindPhoto:
		if err := checkURL(content); err != nil {
			return nil, err
		}
		return models.PhotoContent{URL: content}, nil
	case models.KindVideo:
		if err := checkURL(content); err != nil {
			return nil, err
		}
		return models.VideoContent{URL: content}, nil
	case models.KindLocation:
		return parseLocation(content)
	}
	if isPayloadless(models.Kind(kind)) {
		return models.UnsupportedContent{Type: models.Kind(kind)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
}

// EncodeMessage produces the stored record of m.
func EncodeMessage(m models.Message) (models.MessageRecord, error) {
	kind, content, err := EncodeContent(m.Content)
	if err != nil {
		return models.MessageRecord{}, err
	}
	return models.MessageRecord{
		ID:          m.ID,
		Type:        kind,
		Content:     content,
		Date:        FormatDate(m.SentDate),
		SenderEmail: m.SenderEmail,
		IsRead:      m.IsRead,
		Name:        m.RecipientName,
	}, nil
}

type messageRecordIn struct {
	ID          *string `json:"id" validate:"required"`
	Type        *string `json:"type" validate:"required"`
	Content     *string `json:"content" validate:"required"`
	Date        *string `json:"date" validate:"required"`
	SenderEmail *string `json:"sender_email" validate:"required"`
	IsRead      *bool   `json:"is_read" validate:"required"`
	Name        *string `json:"name" validate:"required"`
}

// DecodeMessage decodes one stored message record.
func DecodeMessage(raw json.RawMessage) (models.Message, error) {
	var in messageRecordIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := validate.Struct(in); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	sent, err := ParseDate(*in.Date)
	if err != nil {
		return models.Message{}, err
	}
	content, err := DecodeContent(*in.Type, *in.Content)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{
		ID:            *in.ID,
		Content:       content,
		SentDate:      sent,
		SenderEmail:   *in.SenderEmail,
		IsRead:        *in.IsRead,
		RecipientName: *in.Name,
	}, nil
}

// RecordError reports a record that was left out of a batch decode.
type RecordError struct {
	Index int
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// DecodeMessages decodes a message log. Records that fail to decode are
// skipped and reported in the second return value.
func DecodeMessages(raws []json.RawMessage) ([]models.Message, []RecordError) {
	msgs := make([]models.Message, 0, len(raws))
	var failed []RecordError
	for i, raw := range raws {
		msg, err := DecodeMessage(raw)
		if err != nil {
			failed = append(failed, RecordError{Index: i, Err: err})
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, failed
}

func isPayloadless(kind models.Kind) bool {
	switch kind {
	case models.KindAttributedText, models.KindEmoji, models.KindAudio,
		models.KindContact, models.KindLinkPreview, models.KindCustom:
		return true
	}
	return false
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute url", ErrInvalidContent, raw)
	}
	return nil
}

func parseLocation(content string) (models.Content, error) {
	parts := strings.Split(content, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: location %q", ErrInvalidContent, content)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: longitude %q", ErrInvalidContent, parts[0])
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: latitude %q", ErrInvalidContent, parts[1])
	}
	if err := checkCoordinates(lon, lat); err != nil {
		return nil, err
	}
	return models.LocationContent{Longitude: lon, Latitude: lat}, nil
}

func checkCoordinates(lon, lat float64) error {
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: coordinates out of range (%v,%v)", ErrInvalidContent, lon, lat)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
