package keys

import (
	"fmt"
	"strings"
)

// Store path layout.
const (
	UsersIndexPath     = "users"
	conversationsChild = "conversations"
	messagesChild      = "messages"
	conversationPrefix = "conversation-"
)

var emailReplacer = strings.NewReplacer(".", "-", "@", "-")

// SafeEmail maps an email address to a store path segment by replacing
// the reserved characters "." and "@" with "-".
func SafeEmail(email string) string {
	return emailReplacer.Replace(email)
}

// UserPath addresses the user record of email.
func UserPath(email string) string {
	return SafeEmail(email)
}

// ConversationsPath addresses the conversation summary list of email.
func ConversationsPath(email string) string {
	return fmt.Sprintf("%s/%s", SafeEmail(email), conversationsChild)
}

// MessagesPath addresses the message log of a conversation.
func MessagesPath(conversationID string) string {
	return fmt.Sprintf("%s/%s", conversationID, messagesChild)
}

// ValidID reports whether id can be used as a single path segment.
func ValidID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.ContainsAny(id, ".#$[]/")
}

// ConversationID derives a conversation id from the id of its first message.
func ConversationID(firstMessageID string) string {
	return conversationPrefix + firstMessageID
}

// ProfilePictureFileName is the media file name of a user's profile picture.
func ProfilePictureFileName(email string) string {
	return SafeEmail(email) + "_profile_picture.png"
}

// Media path layout.
const (
	ProfileImagesDir = "images"
	MessageImagesDir = "message_images"
	MessageVideosDir = "message_videos"
)

// ProfilePicturePath addresses a user's profile picture in media storage.
func ProfilePicturePath(email string) string {
	return ProfileImagesDir + "/" + ProfilePictureFileName(email)
}

// MessagePhotoPath addresses the photo attached to a message.
func MessagePhotoPath(messageID string) string {
	return MessageImagesDir + "/photo_message_" + mediaSegment(messageID) + ".png"
}

// MessageVideoPath addresses the video attached to a message.
func MessageVideoPath(messageID string) string {
	return MessageVideosDir + "/video_message_" + mediaSegment(messageID) + ".mov"
}

func mediaSegment(id string) string {
	return strings.NewReplacer(" ", "-", "/", "-").Replace(id)
}
