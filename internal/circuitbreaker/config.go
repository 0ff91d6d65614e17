package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// CircuitBreakerConfig is the environment-tunable subset of Config
type CircuitBreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// GetLLMConfig returns the inference backend breaker configuration (CB_LLM_*)
func GetLLMConfig() CircuitBreakerConfig {
	return fromEnv("CB_LLM", CircuitBreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	})
}

// GetToolsConfig returns the tool server breaker configuration (CB_TOOLS_*)
func GetToolsConfig() CircuitBreakerConfig {
	return fromEnv("CB_TOOLS", CircuitBreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// GetDatabaseConfig returns the PostgreSQL breaker configuration (CB_DB_*)
func GetDatabaseConfig() CircuitBreakerConfig {
	return fromEnv("CB_DB", CircuitBreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	})
}

// GetRedisConfig returns the Redis breaker configuration (CB_REDIS_*)
func GetRedisConfig() CircuitBreakerConfig {
	return fromEnv("CB_REDIS", CircuitBreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

func fromEnv(prefix string, def CircuitBreakerConfig) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32(prefix+"_MAX_REQUESTS", def.MaxRequests),
		Interval:         getEnvDuration(prefix+"_INTERVAL", def.Interval),
		Timeout:          getEnvDuration(prefix+"_TIMEOUT", def.Timeout),
		FailureThreshold: getEnvUint32(prefix+"_FAILURE_THRESHOLD", def.FailureThreshold),
		SuccessThreshold: getEnvUint32(prefix+"_SUCCESS_THRESHOLD", def.SuccessThreshold),
	}
}

// ToConfig converts CircuitBreakerConfig to circuit breaker Config
func (cbc CircuitBreakerConfig) ToConfig() Config {
	return Config{
		MaxRequests:      cbc.MaxRequests,
		Interval:         cbc.Interval,
		Timeout:          cbc.Timeout,
		FailureThreshold: cbc.FailureThreshold,
		SuccessThreshold: cbc.SuccessThreshold,
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
