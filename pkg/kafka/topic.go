package kafka

import "fmt"

// TopicPrefix is the prefix shared by all MediaCatalog Kafka topics.
const TopicPrefix = "media"

// Topic constructs a fully-qualified topic name: media.<domain>.<action>.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
