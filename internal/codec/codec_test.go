package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

var sent = time.Date(2023, time.May, 8, 16, 5, 6, 0, time.UTC)

func TestDateRoundTrip(t *testing.T) {
	s := FormatDate(sent)
	assert.Equal(t, "May 08, 2023 at 4:05:06 PM UTC", s)

	parsed, err := ParseDate(s)
	require.NoError(t, err)
	assert.True(t, sent.Equal(parsed))
}

func TestFormatDateConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("EST", -5*60*60)
	parsed, err := ParseDate(FormatDate(sent.In(zone)))
	require.NoError(t, err)
	assert.True(t, sent.Equal(parsed))
}

func TestParseDateLegacyZones(t *testing.T) {
	cases := map[string]time.Time{
		"May 08, 2024 at 9:05:06 AM PDT":  time.Date(2024, time.May, 8, 16, 5, 6, 0, time.UTC),
		"Jan 02, 2024 at 10:00:00 AM EST": time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC),
		"Jan 02, 2024 at 8:30:00 PM IST":  time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC),
		"Jan 02, 2024 at 3:00:00 PM GMT":  time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC),
		"Jan 02, 2024 at 3:00:00 PM XYZT": time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		parsed, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(parsed), "%s parsed as %s", in, parsed.UTC())
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("yesterday")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestMessageRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		content models.Content
		wire    string
	}{
		{"text", models.TextContent{Text: "hi, there"}, "hi, there"},
		{"photo", models.PhotoContent{URL: "https://cdn.example.com/message_images/a.png"}, "https://cdn.example.com/message_images/a.png"},
		{"video", models.VideoContent{URL: "https://cdn.example.com/message_videos/a.mov"}, "https://cdn.example.com/message_videos/a.mov"},
		{"location", models.LocationContent{Longitude: -122.4194155, Latitude: 37.7749295}, "-122.4194155,37.7749295"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := models.Message{
				ID:            "m-" + tc.name,
				Content:       tc.content,
				SentDate:      sent,
				SenderEmail:   "a-x-com",
				RecipientName: "Bob",
			}
			rec, err := EncodeMessage(msg)
			require.NoError(t, err)
			assert.Equal(t, tc.name, rec.Type)
			assert.Equal(t, tc.wire, rec.Content)

			raw, err := json.Marshal(rec)
			require.NoError(t, err)
			decoded, err := DecodeMessage(raw)
			require.NoError(t, err)

			assert.Equal(t, msg.ID, decoded.ID)
			assert.Equal(t, msg.SenderEmail, decoded.SenderEmail)
			assert.Equal(t, msg.RecipientName, decoded.RecipientName)
			assert.True(t, msg.SentDate.Equal(decoded.SentDate))
			if loc, ok := tc.content.(models.LocationContent); ok {
				got, ok := decoded.Content.(models.LocationContent)
				require.True(t, ok)
				assert.InDelta(t, loc.Longitude, got.Longitude, 1e-9)
				assert.InDelta(t, loc.Latitude, got.Latitude, 1e-9)
				return
			}
			assert.Equal(t, tc.content, decoded.Content)
		})
	}
}

func TestPayloadlessKindsEncodeEmpty(t *testing.T) {
	for _, kind := range []models.Kind{models.KindEmoji, models.KindAudio, models.KindContact, models.KindLinkPreview, models.KindCustom, models.KindAttributedText} {
		typ, content, err := EncodeContent(models.UnsupportedContent{Type: kind})
		require.NoError(t, err)
		assert.Equal(t, string(kind), typ)
		assert.Empty(t, content)

		decoded, err := DecodeContent(typ, content)
		require.NoError(t, err)
		assert.Equal(t, kind, decoded.Kind())
	}
}

func TestEncodeRejectsBadContent(t *testing.T) {
	_, _, err := EncodeContent(models.PhotoContent{URL: "/relative/path.png"})
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, _, err = EncodeContent(models.VideoContent{})
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, _, err = EncodeContent(models.LocationContent{Longitude: 200})
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, _, err = EncodeContent(nil)
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, _, err = EncodeContent(models.UnsupportedContent{Type: "sticker"})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeContentErrors(t *testing.T) {
	_, err := DecodeContent("sticker", "x")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeContent("location", "1.5")
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, err = DecodeContent("location", "east,north")
	assert.ErrorIs(t, err, ErrInvalidContent)

	_, err = DecodeContent("photo", "not a url")
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestDecodeMessageMissingField(t *testing.T) {
	_, err := DecodeMessage(json.RawMessage(`{"id":"m1","type":"text","content":"hi","date":"May 08, 2023 at 4:05:06 PM UTC","sender_email":"a-x-com","name":"Bob"}`))
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = DecodeMessage(json.RawMessage(`{"id":7}`))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeMessagesDropsUnknownType(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"id":"m1","type":"text","content":"hi","date":"May 08, 2023 at 4:05:06 PM UTC","sender_email":"a-x-com","is_read":false,"name":"Bob"}`),
		json.RawMessage(`{"id":"m2","type":"sticker","content":"s","date":"May 08, 2023 at 4:05:07 PM UTC","sender_email":"a-x-com","is_read":false,"name":"Bob"}`),
		json.RawMessage(`{"id":"m3","type":"text","content":"bye","date":"May 08, 2023 at 4:05:08 PM UTC","sender_email":"b-x-com","is_read":true,"name":"Alice"}`),
	}

	msgs, failed := DecodeMessages(raws)

	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m3", msgs[1].ID)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Index)
	assert.ErrorIs(t, failed[0], ErrUnknownType)
}

func TestDecodeConversationAcceptsLegacyKey(t *testing.T) {
	c, err := DecodeConversation(json.RawMessage(`{"id":"conversation-m1","other_user_email":"b-x-com","name":"Bob","latest_message":{"date":"d","message":"hi","is_read":false}}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", c.LatestMessage.MessageContent)

	c, err = DecodeConversation(json.RawMessage(`{"id":"conversation-m1","other_user_email":"b-x-com","name":"Bob","latest_message":{"date":"d","message":"old","message_content":"new","is_read":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "new", c.LatestMessage.MessageContent)
	assert.True(t, c.LatestMessage.IsRead)
}

func TestDecodeConversationsDropsIncomplete(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"id":"c1","other_user_email":"b-x-com","name":"Bob","latest_message":{"date":"d","message_content":"hi","is_read":false}}`),
		json.RawMessage(`{"id":"c2","other_user_email":"c-x-com","latest_message":{"date":"d","message_content":"hi","is_read":false}}`),
		json.RawMessage(`{"id":"c3","other_user_email":"d-x-com","name":"Dan","latest_message":{"date":"d","is_read":false}}`),
		json.RawMessage(`"not an object"`),
	}

	out, failed := DecodeConversations(raws)

	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ID)
	assert.Len(t, failed, 3)
}
