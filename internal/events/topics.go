package events

// Topic constants for order requests handed to the intake workflow.
const (
	TopicOrderItemRequested  = "order.item_requested"
	TopicOrderCartRequested  = "order.cart_requested"
	TopicOrderQuickRequested = "order.quick_requested"
)

// DefaultTopics returns the topics forwarded to order intake.
func DefaultTopics() []string {
	return []string{
		TopicOrderItemRequested,
		TopicOrderCartRequested,
		TopicOrderQuickRequested,
	}
}

// Forwarded reports whether topic belongs to the intake topics.
func Forwarded(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
