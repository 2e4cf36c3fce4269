package conversation

import (
	"art-chat/internal/daybucket"
	"art-chat/internal/message"
)

// TimelineItem is either a day-divider row (Divider non-empty) or a
// message row.
type TimelineItem struct {
	Divider string
	Msg     message.Message
}

// Timeline walks a chronologically sorted message list and inserts a
// divider row whenever the server-local calendar day changes.
func Timeline(msgs []message.Message) []TimelineItem {
	out := make([]TimelineItem, 0, len(msgs))
	var current daybucket.Day
	for i, m := range msgs {
		day := daybucket.Of(m.CreatedAt.Time)
		if i == 0 || day != current {
			current = day
			out = append(out, TimelineItem{Divider: daybucket.Label(m.CreatedAt.Time)})
		}
		out = append(out, TimelineItem{Msg: m})
	}
	return out
}
