package cache

import "fmt"

func EmbeddingKey(controlKey, modelVersion string) string {
	return fmt.Sprintf("emb:%s:%s", modelVersion, controlKey)
}

func RateLimitKey(clientKey string) string {
	return fmt.Sprintf("ratelimit:%s", clientKey)
}
