package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database: "mysql" (default) or "sqlite"
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	// Redis for the POI cache
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// All "daily" semantics are anchored to this zone
	DayKeyTimezone string
	// Place search provider
	POIProviderURL       string
	POIProviderAPIKey    string
	POIClientID          string
	POIClientSecret      string
	POITokenURL          string
	POICategories        []string
	POILookupTimeoutMs   int
	POICacheTTLSeconds   int
	POIRequestsPerSecond int
	// Bonus amounts
	DailyCompletionBonus  int
	StreakBonus           int
	WeeklyPerfectBonus    int
	ArticleFirstReadBonus int
	// Stale walk sweeper
	WalkAutoCompleteHours int
	WalkSweepIntervalMin  int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// .env is optional; values already present in the environment win.
	_ = godotenv.Load()

	// Precedence: config/config.json -> defaults -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("ignoring invalid config/config.json: %v", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			case json.Number:
				i, _ := t.Int64()
				return int(i)
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.DayKeyTimezone = getString(app, "DayKeyTimezone")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		if v := getString(g, "Mode"); v != "" {
			out.GinMode = v
		}
		if v := getString(g, "LogPath"); v != "" {
			out.GinPath = v
		}
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.SQLitePath = getString(dbs, "SQLitePath")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		if v := getInt(rds, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		if v := getInt(rds, "RedisDB"); v != 0 {
			out.RedisDB = v
		}
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if poi, ok := raw["poi"].(map[string]any); ok {
		out.POIProviderURL = getString(poi, "ProviderURL")
		out.POIProviderAPIKey = getString(poi, "APIKey")
		out.POIClientID = getString(poi, "ClientID")
		out.POIClientSecret = getString(poi, "ClientSecret")
		out.POITokenURL = getString(poi, "TokenURL")
		out.POICategories = getStringSlice(poi, "Categories")
		out.POILookupTimeoutMs = getInt(poi, "LookupTimeoutMs")
		out.POICacheTTLSeconds = getInt(poi, "CacheTTLSeconds")
		out.POIRequestsPerSecond = getInt(poi, "RequestsPerSecond")
	}

	if gm, ok := raw["gamification"].(map[string]any); ok {
		out.DailyCompletionBonus = getInt(gm, "DailyCompletionBonus")
		out.StreakBonus = getInt(gm, "StreakBonus")
		out.WeeklyPerfectBonus = getInt(gm, "WeeklyPerfectBonus")
		out.ArticleFirstReadBonus = getInt(gm, "ArticleFirstReadBonus")
	}

	if wk, ok := raw["walk"].(map[string]any); ok {
		out.WalkAutoCompleteHours = getInt(wk, "AutoCompleteHours")
		out.WalkSweepIntervalMin = getInt(wk, "SweepIntervalMin")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "pawtrail"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/pawtrail.db"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.DayKeyTimezone == "" {
		c.DayKeyTimezone = "Asia/Seoul"
	}
	if len(c.POICategories) == 0 {
		c.POICategories = []string{"park", "veterinary_care", "pet_store"}
	}
	if c.POILookupTimeoutMs == 0 {
		c.POILookupTimeoutMs = 3000
	}
	if c.POICacheTTLSeconds == 0 {
		c.POICacheTTLSeconds = 600
	}
	if c.POIRequestsPerSecond == 0 {
		c.POIRequestsPerSecond = 5
	}
	if c.DailyCompletionBonus == 0 {
		c.DailyCompletionBonus = 20
	}
	if c.StreakBonus == 0 {
		c.StreakBonus = 50
	}
	if c.WeeklyPerfectBonus == 0 {
		c.WeeklyPerfectBonus = 100
	}
	if c.ArticleFirstReadBonus == 0 {
		c.ArticleFirstReadBonus = 5
	}
	if c.WalkAutoCompleteHours == 0 {
		c.WalkAutoCompleteHours = 6
	}
	if c.WalkSweepIntervalMin == 0 {
		c.WalkSweepIntervalMin = 10
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	c.AllowedOrigins = readListEnv("ALLOWED_ORIGINS", c.AllowedOrigins)
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("SQLITE_PATH", ""); v != "" {
		c.SQLitePath = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true" || v == "1"
	}
	if v := getEnv("DAY_KEY_TIMEZONE", ""); v != "" {
		c.DayKeyTimezone = v
	}
	if v := getEnv("POI_PROVIDER_URL", ""); v != "" {
		c.POIProviderURL = v
	}
	if v := getEnv("POI_PROVIDER_API_KEY", ""); v != "" {
		c.POIProviderAPIKey = v
	}
	if v := getEnv("POI_CLIENT_ID", ""); v != "" {
		c.POIClientID = v
	}
	if v := getEnv("POI_CLIENT_SECRET", ""); v != "" {
		c.POIClientSecret = v
	}
	if v := getEnv("POI_TOKEN_URL", ""); v != "" {
		c.POITokenURL = v
	}
	c.POICategories = readListEnv("POI_CATEGORIES", c.POICategories)
	if v := getEnv("POI_LOOKUP_TIMEOUT_MS", ""); v != "" {
		c.POILookupTimeoutMs = mustParseInt(v)
	}
	if v := getEnv("POI_CACHE_TTL_SECONDS", ""); v != "" {
		c.POICacheTTLSeconds = mustParseInt(v)
	}
	if v := getEnv("POI_REQUESTS_PER_SECOND", ""); v != "" {
		c.POIRequestsPerSecond = mustParseInt(v)
	}
	if v := getEnv("DAILY_COMPLETION_BONUS", ""); v != "" {
		c.DailyCompletionBonus = mustParseInt(v)
	}
	if v := getEnv("STREAK_BONUS", ""); v != "" {
		c.StreakBonus = mustParseInt(v)
	}
	if v := getEnv("WEEKLY_PERFECT_BONUS", ""); v != "" {
		c.WeeklyPerfectBonus = mustParseInt(v)
	}
	if v := getEnv("ARTICLE_FIRST_READ_BONUS", ""); v != "" {
		c.ArticleFirstReadBonus = mustParseInt(v)
	}
	if v := getEnv("WALK_AUTO_COMPLETE_HOURS", ""); v != "" {
		c.WalkAutoCompleteHours = mustParseInt(v)
	}
	if v := getEnv("WALK_SWEEP_INTERVAL_MIN", ""); v != "" {
		c.WalkSweepIntervalMin = mustParseInt(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
