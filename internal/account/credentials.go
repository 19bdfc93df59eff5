package account

import (
	"fmt"

	"inboxrelay/internal/secret"
)

// SetCredentials seals the LinkedIn login before it reaches the row.
func (c *Client) SetCredentials(box *secret.Box, phone, password string) error {
	p, err := box.Seal(phone)
	if err != nil {
		return fmt.Errorf("seal phone: %w", err)
	}
	pw, err := box.Seal(password)
	if err != nil {
		return fmt.Errorf("seal password: %w", err)
	}
	c.LinkedInPhone, c.LinkedInPassword = p, pw
	return nil
}
