package cache

import "strings"

const (
	GlobalKeyPrefix = "corelms"
)

// GenerateCacheKey generates a cache key for a given service, object type, and identifier.
// If paramsKey are provided, they are joined by "_" and appended to the cache key.
func GenerateCacheKey(serviceName, objectType, identifier string, paramsKey ...string) string {
	baseKey := strings.Join([]string{GlobalKeyPrefix, serviceName, objectType, identifier}, ":")
	if len(paramsKey) > 0 {
		return strings.Join([]string{baseKey, strings.Join(paramsKey, "_")}, ":")
	}
	return baseKey
}

// QuizSessionKey is the per-(learner, quiz) session entry.
func QuizSessionKey(userID, quizID string) string {
	return GenerateCacheKey("quiz", "session", userID, quizID)
}

// JobMetaKey holds the stage/heartbeat/cancellation meta hash for one job.
func JobMetaKey(jobID string) string {
	return GenerateCacheKey("jobs", "meta", jobID)
}

// QueueKey is the list backing a named job queue.
func QueueKey(name string) string {
	return GenerateCacheKey("jobs", "queue", name)
}

// ImportLockByFingerprint locks enqueue by content fingerprint (etag:size).
func ImportLockByFingerprint(fingerprint string) string {
	return GenerateCacheKey("import", "lock", "fingerprint", fingerprint)
}

// ImportLockByTitle locks enqueue by normalized module title.
func ImportLockByTitle(normTitle string) string {
	return GenerateCacheKey("import", "lock", "title", normTitle)
}

// ImportLockByObjectKey locks enqueue by the uploaded object's storage key.
func ImportLockByObjectKey(objectKey string) string {
	return GenerateCacheKey("import", "lock", "object", objectKey)
}

// RegenLock locks regeneration enqueue per module.
func RegenLock(moduleID string) string {
	return GenerateCacheKey("regen", "lock", "module", moduleID)
}

// RuntimeLLMKey is the hash holding admin runtime overrides for providers.
func RuntimeLLMKey() string {
	return GenerateCacheKey("runtime", "llm", "overrides")
}

// ProviderOrderKey caches the healthcheck-informed provider order.
func ProviderOrderKey() string {
	return GenerateCacheKey("runtime", "llm", "preflight_order")
}
