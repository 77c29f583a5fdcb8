package kafka

// Default topic names, overridable through KAFKA_MODEL_EVENTS_TOPIC
const (
	TopicModelEvents = "irrigation.model.events"

	// ConsumerGroupPrefix is suffixed with the replica hostname so every replica sees every event
	ConsumerGroupPrefix = "irrigation-bundle-sync"
)
