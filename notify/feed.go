package notify

import "time"

// MaxItems bounds the notification feed. Older entries fall off the end.
const MaxItems = 25

// Notification is a user-facing alert event, keyed by ID.
type Notification struct {
	ID          uint
	UserID      uint
	Type        string
	Title       string
	Message     string
	Payload     string
	IsRead      bool
	ReadAt      *time.Time
	TriggeredAt time.Time
}

// FeedState is the observable notification feed: a bounded, de-duplicated,
// newest-first item list plus an unread counter and channel status flags.
type FeedState struct {
	Items       []Notification
	UnreadCount int
	Connected   bool
	Loading     bool
	Error       string
}

// pushItem prepends n, removing any prior entry with the same ID and
// truncating to MaxItems. UnreadCount grows by one only for a genuinely
// unread incoming event; the bulk fetch never goes through here.
func pushItem(s FeedState, n Notification) FeedState {
	items := make([]Notification, 0, len(s.Items)+1)
	items = append(items, n)
	for _, item := range s.Items {
		if item.ID != n.ID {
			items = append(items, item)
		}
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	s.Items = items
	if !n.IsRead {
		s.UnreadCount++
	}
	return s
}

// markItemRead flips the matching item's read flag and decrements
// UnreadCount by at most one, never below zero.
func markItemRead(s FeedState, id uint, at time.Time) FeedState {
	items := make([]Notification, len(s.Items))
	copy(items, s.Items)
	for i := range items {
		if items[i].ID == id && !items[i].IsRead {
			items[i].IsRead = true
			t := at
			items[i].ReadAt = &t
			if s.UnreadCount > 0 {
				s.UnreadCount--
			}
			break
		}
	}
	s.Items = items
	return s
}

// markAllItemsRead flips every item's read flag and zeroes UnreadCount.
func markAllItemsRead(s FeedState, at time.Time) FeedState {
	items := make([]Notification, len(s.Items))
	copy(items, s.Items)
	for i := range items {
		if !items[i].IsRead {
			items[i].IsRead = true
			t := at
			items[i].ReadAt = &t
		}
	}
	s.Items = items
	s.UnreadCount = 0
	return s
}
