package notifystoryready

type Input struct {
	BookID         string `json:"bookId"`
	UserID         string `json:"userId"`
	Title          string `json:"title"`
	CaregiverEmail string `json:"caregiverEmail,omitempty"`
}

type Output struct {
	Published      bool   `json:"eventPublished"`
	EventMessageID string `json:"eventMessageId,omitempty"`
	Emailed        bool   `json:"emailSent"`
	EmailMessageID string `json:"emailMessageId,omitempty"`
}

// StoryReadyEvent is the SNS message body.
type StoryReadyEvent struct {
	Event  string `json:"event"`
	BookID string `json:"book_id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}
