package notify

import (
	"context"
	"fmt"
)

// listNotifications fetches the newest MaxItems notifications for the user.
// The endpoint returns a bare JSON array.
func (c *Channel) listNotifications(ctx context.Context, userID uint) ([]Notification, error) {
	var items []Notification
	path := fmt.Sprintf("/users/%d/notifications?limit=%d", userID, MaxItems)
	if err := c.client.Get(ctx, path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// unreadCount fetches the authoritative unread counter.
func (c *Channel) unreadCount(ctx context.Context, userID uint) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	path := fmt.Sprintf("/users/%d/notifications/unread/count", userID)
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// markRead marks one notification read server-side.
func (c *Channel) markRead(ctx context.Context, userID, notificationID uint) error {
	path := fmt.Sprintf("/users/%d/notifications/%d/read", userID, notificationID)
	return c.client.Patch(ctx, path, nil, nil)
}

// markAllRead marks every notification read server-side.
func (c *Channel) markAllRead(ctx context.Context, userID uint) error {
	path := fmt.Sprintf("/users/%d/notifications/read-all", userID)
	return c.client.Patch(ctx, path, nil, nil)
}
