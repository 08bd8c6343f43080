package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads WEAVE_* environment variables for settings that have
// no dedicated CLI flag. Durations accept Go syntax (30s) or ISO-8601 (PT30S, P7D).
func (c *Config) ApplyEnvOverrides() error {
	if c == nil {
		return nil
	}

	var err error
	if err = applyBoolEnv("WEAVE_MIGRATE_AT_START", &c.MigrateAtStart); err != nil {
		return err
	}

	if raw := strings.TrimSpace(os.Getenv("WEAVE_ARTIFACTS_MAX_SIZE")); raw != "" {
		size, parseErr := parseMemorySize(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid WEAVE_ARTIFACTS_MAX_SIZE: %w", parseErr)
		}
		c.ArtifactMaxSize = size
	}
	if err = applyDurationEnv("WEAVE_ARTIFACTS_DEFAULT_URL_TTL", &c.ArtifactDefaultURLTTL); err != nil {
		return err
	}
	applyStringEnv("WEAVE_ARTIFACTS_S3_PREFIX", &c.S3Prefix)
	applyStringEnv("WEAVE_ARTIFACTS_S3_EXTERNAL_ENDPOINT", &c.S3ExternalEndpoint)

	applyStringEnv("WEAVE_EMBEDDING_OPENAI_MODEL_NAME", &c.OpenAIModelName)
	applyStringEnv("WEAVE_EMBEDDING_OPENAI_BASE_URL", &c.OpenAIBaseURL)
	if err = applyIntEnv("WEAVE_EMBEDDING_OPENAI_BREAKER_FAILURES", &c.OpenAIBreakerFailures); err != nil {
		return err
	}
	if err = applyDurationEnv("WEAVE_EMBEDDING_OPENAI_BREAKER_TIMEOUT", &c.OpenAIBreakerTimeout); err != nil {
		return err
	}

	if err = applyIntEnv("WEAVE_VECTOR_QDRANT_PORT", &c.QdrantPort); err != nil {
		return err
	}
	applyStringEnv("WEAVE_VECTOR_QDRANT_COLLECTION_NAME", &c.QdrantCollectionName)
	applyStringEnv("WEAVE_VECTOR_QDRANT_API_KEY", &c.QdrantAPIKey)
	if err = applyBoolEnv("WEAVE_VECTOR_QDRANT_USE_TLS", &c.QdrantUseTLS); err != nil {
		return err
	}
	if err = applyDurationEnv("WEAVE_VECTOR_QDRANT_STARTUP_TIMEOUT", &c.QdrantStartupTimeout); err != nil {
		return err
	}

	if err = applyDurationEnv("WEAVE_INDEX_RETRY_BASE_DELAY", &c.IndexRetryBaseDelay); err != nil {
		return err
	}
	if err = applyDurationEnv("WEAVE_INDEX_RETRY_MAX_DELAY", &c.IndexRetryMaxDelay); err != nil {
		return err
	}
	if err = applyDurationEnv("WEAVE_PURGE_INTERVAL", &c.PurgeInterval); err != nil {
		return err
	}
	if err = applyDurationEnv("WEAVE_PURGE_RETENTION", &c.PurgeRetention); err != nil {
		return err
	}
	if err = applyIntEnv("WEAVE_PURGE_BATCH_SIZE", &c.PurgeBatchSize); err != nil {
		return err
	}
	if err = applyDurationEnv("WEAVE_PURGE_BATCH_DELAY", &c.PurgeBatchDelay); err != nil {
		return err
	}
	if err = applyIntEnv("WEAVE_SEARCH_GRAPH_SEEDS", &c.SearchGraphSeeds); err != nil {
		return err
	}

	if err = applyBoolEnv("WEAVE_CORS_ENABLED", &c.CORSEnabled); err != nil {
		return err
	}
	applyStringEnv("WEAVE_CORS_ORIGINS", &c.CORSOrigins)
	return nil
}

// QdrantAddress returns host:port for qdrant gRPC dialing.
func (c *Config) QdrantAddress() string {
	if c == nil {
		return "localhost:6334"
	}
	host := strings.TrimSpace(c.QdrantHost)
	port := c.QdrantPort
	if parsedHost, parsedPort, ok := splitHostPort(host); ok {
		host = parsedHost
		port = parsedPort
	}
	if host == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 6334
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func splitHostPort(raw string) (string, int, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", 0, false
	}
	if strings.Contains(v, "://") {
		if u, err := url.Parse(v); err == nil && strings.TrimSpace(u.Host) != "" {
			v = u.Host
		}
	}
	host, port, err := net.SplitHostPort(v)
	if err != nil {
		return "", 0, false
	}
	p, err := strconv.Atoi(port)
	if err != nil || host == "" {
		return "", 0, false
	}
	return host, p, true
}

func applyStringEnv(key string, dest *string) {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		*dest = raw
	}
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

// ParseDuration accepts Go durations (90s, 5m) and a subset of ISO-8601
// (P#D, PT#H#M#S, P#DT#H#M#S).
func ParseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(strings.ToLower(v)); err == nil {
		return d, nil
	}
	if !strings.HasPrefix(v, "P") {
		return 0, fmt.Errorf("unsupported format %q", raw)
	}
	rest := v[1:]
	inTime := false
	total := time.Duration(0)
	for len(rest) > 0 {
		if rest[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("invalid format %q", raw)
			}
			inTime = true
			rest = rest[1:]
			continue
		}
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(rest) {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		switch {
		case rest[i] == 'D' && !inTime:
			total += time.Duration(n) * 24 * time.Hour
		case rest[i] == 'H' && inTime:
			total += time.Duration(n) * time.Hour
		case rest[i] == 'M' && inTime:
			total += time.Duration(n) * time.Minute
		case rest[i] == 'S' && inTime:
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		rest = rest[i+1:]
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

func parseMemorySize(raw string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		multiplier = 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KB"), "K")
	case strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		multiplier = 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MB"), "M")
	case strings.HasSuffix(v, "GB"), strings.HasSuffix(v, "G"):
		multiplier = 1024 * 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "GB"), "G")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}
