package main

import (
	"os"
	"strconv"
	"strings"
)

type config struct {
	MySQLDSN    string
	RedisAddr   string
	LogLevel    string
	LogOutput   []string
	Development bool
	WorkerCount int
	QueueSize   int
}

func loadConfig() config {
	return config{
		MySQLDSN:    getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/allocation?parseTime=true"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogOutput:   getEnvList("LOG_OUTPUT", "stderr"),
		Development: getEnv("APP_ENV", "development") == "development",
		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 1000),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key, fallback string) []string {
	var items []string
	for _, item := range strings.Split(getEnv(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
