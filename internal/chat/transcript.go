package chat

import (
	"strings"
	"time"

	"talentchat/backend/internal/models"
)

// Line is one rendered transcript entry.
type Line struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Initials   string    `json:"initials"`
	Content    string    `json:"content"`
	Mine       bool      `json:"mine"`
	Time       string    `json:"time"`
	CreatedAt  time.Time `json:"created_at"`
}

// Render turns messages into display lines. Senders missing from names are
// shown by the first two characters of their id.
func Render(messages []models.Message, currentUserID string, names map[string]string) []Line {
	lines := make([]Line, 0, len(messages))
	for _, msg := range messages {
		name, known := names[msg.SenderID]
		fallback := strings.ToUpper(prefix(msg.SenderID, 2))
		line := Line{
			ID:        msg.ID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			Mine:      msg.SenderID == currentUserID,
			Time:      msg.CreatedAt.Format(time.Kitchen),
			CreatedAt: msg.CreatedAt,
		}
		if known && name != "" {
			line.SenderName = name
			line.Initials = initials(name)
		} else {
			line.SenderName = fallback
			line.Initials = fallback
		}
		lines = append(lines, line)
	}
	return lines
}

func initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		b.WriteString(prefix(word, 1))
	}
	return strings.ToUpper(prefix(b.String(), 2))
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}
