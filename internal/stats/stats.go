// Package stats derives usage summaries from a user's chats.
package stats

import (
	"time"

	"github.com/theBrainly/chatgpt-clone/internal/store"
)

// UserStats is the aggregate returned by the stats endpoint.
type UserStats struct {
	TotalChats             int       `json:"totalChats"`
	TotalMessages          int       `json:"totalMessages"`
	TotalCollaborations    int       `json:"totalCollaborations"`
	TotalSharedChats       int       `json:"totalSharedChats"`
	AverageMessagesPerChat int       `json:"averageMessagesPerChat"`
	FavoriteTimeOfDay      string    `json:"favoriteTimeOfDay"`
	MostActiveDay          string    `json:"mostActiveDay"`
	LastCalculatedAt       time.Time `json:"lastCalculatedAt"`
}

// Compute aggregates stats from the user's owned chats and the chats they
// collaborate on. Pure; the caller loads both lists.
func Compute(owned, collaborated []store.Chat, now time.Time) UserStats {
	totalMessages := 0
	sharedChats := 0
	for _, chat := range owned {
		totalMessages += len(chat.Messages)
		if chat.IsShared {
			sharedChats++
		}
	}

	avg := 0
	if len(owned) > 0 {
		// Round half up, matching integer display expectations.
		avg = (totalMessages + len(owned)/2) / len(owned)
	}

	return UserStats{
		TotalChats:             len(owned),
		TotalMessages:          totalMessages,
		TotalCollaborations:    len(collaborated),
		TotalSharedChats:       sharedChats,
		AverageMessagesPerChat: avg,
		FavoriteTimeOfDay:      FavoriteTimeOfDay(owned),
		MostActiveDay:          MostActiveDay(owned),
		LastCalculatedAt:       now,
	}
}

// timeSlots in histogram order; ties resolve to the earliest slot.
var timeSlots = []string{"morning", "afternoon", "evening", "night"}

// FavoriteTimeOfDay buckets message timestamps into morning (06-12),
// afternoon (12-18), evening (18-22), and night (22-06) and returns the
// busiest bucket.
func FavoriteTimeOfDay(chats []store.Chat) string {
	counts := make(map[string]int, len(timeSlots))
	for _, chat := range chats {
		for _, m := range chat.Messages {
			hour := m.Timestamp.Hour()
			switch {
			case hour >= 6 && hour < 12:
				counts["morning"]++
			case hour >= 12 && hour < 18:
				counts["afternoon"]++
			case hour >= 18 && hour < 22:
				counts["evening"]++
			default:
				counts["night"]++
			}
		}
	}
	return argmax(timeSlots, counts)
}

var dayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// MostActiveDay returns the weekday with the most messages.
func MostActiveDay(chats []store.Chat) string {
	counts := make(map[string]int, len(dayNames))
	for _, chat := range chats {
		for _, m := range chat.Messages {
			switch m.Timestamp.Weekday() {
			case time.Monday:
				counts["monday"]++
			case time.Tuesday:
				counts["tuesday"]++
			case time.Wednesday:
				counts["wednesday"]++
			case time.Thursday:
				counts["thursday"]++
			case time.Friday:
				counts["friday"]++
			case time.Saturday:
				counts["saturday"]++
			case time.Sunday:
				counts["sunday"]++
			}
		}
	}
	return argmax(dayNames, counts)
}

func argmax(order []string, counts map[string]int) string {
	best := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[best] {
			best = key
		}
	}
	return best
}
