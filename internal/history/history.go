// Package history turns stored conversation messages into the bounded turn
// list sent to a provider.
package history

import "chatrelay/internal/models"

// DefaultWindow is the number of prior turns forwarded to a provider.
const DefaultWindow = 8

// Windower bounds the conversational context forwarded upstream.
type Windower struct {
	size int
}

// New returns a Windower keeping at most size prior turns. A negative size is treated as zero.
func New(size int) Windower {
	if size < 0 {
		size = 0
	}
	return Windower{size: size}
}

// Size reports the configured window.
func (w Windower) Size() int {
	return w.size
}

// Build returns the last Size() user/assistant turns of stored in chronological
// order followed by the new user turn. Messages with other roles are skipped.
func (w Windower) Build(newMessage string, stored []models.Message, imageURL string) []models.Turn {
	kept := make([]models.Turn, 0, len(stored))
	for _, msg := range stored {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		kept = append(kept, models.Turn{
			Role:     msg.Role,
			Content:  msg.Content,
			ImageURL: msg.ImageURL,
		})
	}
	if len(kept) > w.size {
		kept = kept[len(kept)-w.size:]
	}

	turns := make([]models.Turn, 0, len(kept)+1)
	turns = append(turns, kept...)
	return append(turns, models.Turn{
		Role:     models.RoleUser,
		Content:  newMessage,
		ImageURL: imageURL,
	})
}
