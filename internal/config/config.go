package config

import (
	"os"
	"strconv"
)

type Config struct {
	ListenAddr string
	DBDSN      string
	LogMode    string

	SessionDurationSecs int
	RateLimitRequests   int
	RateLimitWindowSecs int
	ChatContextWindow   int

	// AI provider
	AIProvider      string
	GroqBaseURL     string
	GroqAPIKey      string
	GroqModel       string
	GroqTemperature float64
	GroqMaxTokens   int

	RetrievalTopK int
}

func Load() Config {
	// Default DSN is an embedded sqlite file next to the binary.
	// A MySQL DSN such as app:apppass@tcp(127.0.0.1:3306)/medichat?parseTime=true
	// switches the store to MySQL.
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "medichat.db"
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "dev"
	}

	sessionDur := 3600
	if v := os.Getenv("SESSION_DURATION_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sessionDur = n
		}
	}

	rlRequests := 10
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rlRequests = n
		}
	}

	rlWindow := 60
	if v := os.Getenv("RATE_LIMIT_WINDOW_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rlWindow = n
		}
	}

	ctxWindow := 20
	if v := os.Getenv("CHAT_CONTEXT_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			ctxWindow = n
		}
	}

	aiProvider := os.Getenv("AI_PROVIDER")
	if aiProvider == "" {
		if os.Getenv("GROQ_API_KEY") != "" {
			aiProvider = "groq"
		} else {
			aiProvider = "fallback"
		}
	}

	groqBaseURL := os.Getenv("GROQ_BASE_URL")
	if groqBaseURL == "" {
		groqBaseURL = "https://api.groq.com/openai/v1"
	}
	groqModel := os.Getenv("GROQ_MODEL")
	if groqModel == "" {
		groqModel = "llama-3.3-70b-versatile"
	}

	groqTemp := 0.7
	if v := os.Getenv("GROQ_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			groqTemp = f
		}
	}

	groqMaxTokens := 2048
	if v := os.Getenv("GROQ_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			groqMaxTokens = n
		}
	}

	topK := 3
	if v := os.Getenv("RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topK = n
		}
	}

	return Config{
		ListenAddr: addr,
		DBDSN:      dsn,
		LogMode:    logMode,

		SessionDurationSecs: sessionDur,
		RateLimitRequests:   rlRequests,
		RateLimitWindowSecs: rlWindow,
		ChatContextWindow:   ctxWindow,

		AIProvider:      aiProvider,
		GroqBaseURL:     groqBaseURL,
		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		GroqModel:       groqModel,
		GroqTemperature: groqTemp,
		GroqMaxTokens:   groqMaxTokens,

		RetrievalTopK: topK,
	}
}
