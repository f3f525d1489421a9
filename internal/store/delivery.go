package store

// Delivery is one queued webhook delivery attempt. The worker consumes
// these; API listings serialize their own trimmed view.
type Delivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}
