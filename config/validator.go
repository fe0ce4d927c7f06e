package config

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// ConfigValidator 基于规则的配置验证器
type ConfigValidator struct {
	mu         sync.RWMutex
	validators map[string]ValidatorFunc
	rules      []ValidationRule
}

// ValidatorFunc 验证器函数类型
type ValidatorFunc func(value interface{}) *ValidationResult

// ValidationRule 把配置字段绑定到一个验证器
type ValidationRule struct {
	Field     string
	Validator string
	// Condition 为 nil 时总是验证
	Condition func(cfg *Config) bool
	Value     func(cfg *Config) interface{}
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidationReport 验证报告
type ValidationReport struct {
	Valid        bool                         `json:"valid"`
	OverallScore float64                      `json:"overall_score"`
	Results      map[string]*ValidationResult `json:"results"`
	Summary      ValidationSummary            `json:"summary"`
	Timestamp    time.Time                    `json:"timestamp"`
}

// ValidationSummary 验证摘要
type ValidationSummary struct {
	TotalFields   int `json:"total_fields"`
	ValidFields   int `json:"valid_fields"`
	InvalidFields int `json:"invalid_fields"`
	WarningFields int `json:"warning_fields"`
	TotalErrors   int `json:"total_errors"`
	TotalWarnings int `json:"total_warnings"`
}

var modelPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_./:-]*[a-zA-Z0-9]$`)

// NewConfigValidator 创建配置验证器
func NewConfigValidator() *ConfigValidator {
	v := &ConfigValidator{validators: make(map[string]ValidatorFunc)}
	v.registerBuiltinValidators()
	v.defineValidationRules()
	return v
}

// RegisterValidator 注册或替换验证器
func (v *ConfigValidator) RegisterValidator(name string, fn ValidatorFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.validators[name] = fn
}

func (v *ConfigValidator) registerBuiltinValidators() {
	v.validators["api_key"] = func(value interface{}) *ValidationResult {
		str, _ := value.(string)
		str = strings.TrimSpace(str)
		if str == "" {
			return invalid("API key must not be empty")
		}
		lower := strings.ToLower(str)
		for _, placeholder := range []string{"your-api-key", "placeholder", "example", "changeme"} {
			if strings.Contains(lower, placeholder) {
				return invalid("API key looks like placeholder text")
			}
		}
		if len(str) < 10 {
			return warn("API key is shorter than 10 characters")
		}
		return ok()
	}

	v.validators["url"] = func(value interface{}) *ValidationResult {
		str, _ := value.(string)
		str = strings.TrimSpace(str)
		if str == "" {
			return invalid("URL must not be empty")
		}
		parsed, err := url.Parse(str)
		if err != nil {
			return invalid(fmt.Sprintf("invalid URL: %v", err))
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return invalid("URL must include scheme and host")
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return warn("URL should use http or https")
		}
		return ok()
	}

	v.validators["model_name"] = func(value interface{}) *ValidationResult {
		str, _ := value.(string)
		str = strings.TrimSpace(str)
		if str == "" {
			return invalid("model name must not be empty")
		}
		if !modelPattern.MatchString(str) {
			return invalid(fmt.Sprintf("invalid model name %q", str))
		}
		return ok()
	}

	v.validators["database_url"] = func(value interface{}) *ValidationResult {
		str, _ := value.(string)
		str = strings.TrimSpace(str)
		if str == "" {
			return invalid("database URL must not be empty")
		}
		if !strings.HasPrefix(str, "postgres://") && !strings.HasPrefix(str, "postgresql://") {
			return warn("database URL is not a postgres:// URL")
		}
		parsed, err := url.Parse(str)
		if err != nil {
			return invalid(fmt.Sprintf("invalid database URL: %v", err))
		}
		if parsed.Host == "" {
			return invalid("database URL must include a host")
		}
		if parsed.Path == "" || parsed.Path == "/" {
			return warn("database URL has no database name")
		}
		return ok()
	}

	v.validators["host_port"] = func(value interface{}) *ValidationResult {
		str, _ := value.(string)
		str = strings.TrimSpace(str)
		if str == "" {
			return invalid("address must not be empty")
		}
		if !strings.Contains(str, ":") {
			return warn("address has no port")
		}
		return ok()
	}

	v.validators["store"] = oneOf("store", "memory", "sqlite", "pgvector", "milvus")
	v.validators["session_store"] = oneOf("session store", "memory", "redis")

	v.validators["port"] = func(value interface{}) *ValidationResult {
		str, _ := value.(string)
		var port int
		if _, err := fmt.Sscanf(strings.TrimSpace(str), "%d", &port); err != nil {
			return invalid(fmt.Sprintf("port must be numeric: %q", str))
		}
		if port < 1 || port > 65535 {
			return invalid(fmt.Sprintf("port out of range: %d", port))
		}
		if port < 1024 {
			return warn("ports below 1024 usually need elevated privileges")
		}
		return ok()
	}

	v.validators["positive"] = func(value interface{}) *ValidationResult {
		n, _ := value.(int)
		if n <= 0 {
			return invalid(fmt.Sprintf("value must be positive, got %d", n))
		}
		return ok()
	}
}

func (v *ConfigValidator) defineValidationRules() {
	v.rules = []ValidationRule{
		{Field: "api_key", Validator: "api_key", Value: func(c *Config) interface{} { return c.APIKey }},
		{Field: "base_url", Validator: "url", Value: func(c *Config) interface{} { return c.BaseURL }},
		{Field: "chat_model", Validator: "model_name", Value: func(c *Config) interface{} { return c.ChatModel }},
		{Field: "max_tokens", Validator: "positive", Value: func(c *Config) interface{} { return c.MaxTokens }},
		{Field: "store", Validator: "store", Value: func(c *Config) interface{} { return c.Store }},
		{Field: "session_store", Validator: "session_store", Value: func(c *Config) interface{} { return c.SessionStore }},
		{Field: "port", Validator: "port", Value: func(c *Config) interface{} { return c.Port }},
		{Field: "embedding_base_url", Validator: "url",
			Condition: (*Config).HasEmbeddingAPI,
			Value:     func(c *Config) interface{} { return c.EmbeddingBaseURL }},
		{Field: "embedding_model", Validator: "model_name",
			Condition: (*Config).HasEmbeddingAPI,
			Value:     func(c *Config) interface{} { return c.EmbeddingModel }},
		{Field: "postgres_url", Validator: "database_url",
			Condition: func(c *Config) bool { return c.Store == "pgvector" },
			Value:     func(c *Config) interface{} { return c.PostgresURL }},
		{Field: "milvus_addr", Validator: "host_port",
			Condition: func(c *Config) bool { return c.Store == "milvus" },
			Value:     func(c *Config) interface{} { return c.MilvusAddr }},
		{Field: "redis_addr", Validator: "host_port",
			Condition: func(c *Config) bool { return c.SessionStore == "redis" },
			Value:     func(c *Config) interface{} { return c.RedisAddr }},
		{Field: "embedding_dim", Validator: "positive", Value: func(c *Config) interface{} { return c.EmbeddingDim }},
	}
}

// ValidateConfig 按规则验证配置并生成报告
func (v *ConfigValidator) ValidateConfig(cfg *Config) *ValidationReport {
	v.mu.RLock()
	defer v.mu.RUnlock()

	report := &ValidationReport{
		Valid:     true,
		Results:   make(map[string]*ValidationResult),
		Timestamp: time.Now(),
	}

	for _, rule := range v.rules {
		if rule.Condition != nil && !rule.Condition(cfg) {
			continue
		}
		fn, found := v.validators[rule.Validator]
		if !found {
			report.Results[rule.Field] = invalid(fmt.Sprintf("unknown validator %q", rule.Validator))
			continue
		}
		report.Results[rule.Field] = fn(rule.Value(cfg))
	}

	report.Summary = calculateSummary(report.Results)
	report.Valid = report.Summary.InvalidFields == 0
	report.OverallScore = calculateOverallScore(report.Summary)
	return report
}

func calculateSummary(results map[string]*ValidationResult) ValidationSummary {
	summary := ValidationSummary{TotalFields: len(results)}
	for _, r := range results {
		if r.Valid {
			summary.ValidFields++
		} else {
			summary.InvalidFields++
		}
		if len(r.Warnings) > 0 {
			summary.WarningFields++
		}
		summary.TotalErrors += len(r.Errors)
		summary.TotalWarnings += len(r.Warnings)
	}
	return summary
}

// calculateOverallScore 满分100，每个错误扣5分，每个警告扣2分
func calculateOverallScore(s ValidationSummary) float64 {
	if s.TotalFields == 0 {
		return 100
	}
	score := float64(s.ValidFields) / float64(s.TotalFields) * 100
	score -= float64(s.TotalErrors) * 5
	score -= float64(s.TotalWarnings) * 2
	if score < 0 {
		score = 0
	}
	return score
}

// GetFormattedReport 生成可读的验证报告
func (r *ValidationReport) GetFormattedReport() string {
	var b strings.Builder
	b.WriteString("=== Configuration Validation Report ===\n")
	fmt.Fprintf(&b, "Valid: %t\n", r.Valid)
	fmt.Fprintf(&b, "Score: %.1f/100\n", r.OverallScore)
	fmt.Fprintf(&b, "Fields: %d valid, %d invalid, %d with warnings\n",
		r.Summary.ValidFields, r.Summary.InvalidFields, r.Summary.WarningFields)

	fields := make([]string, 0, len(r.Results))
	for f := range r.Results {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		res := r.Results[f]
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "  [ERROR] %s: %s\n", f, e)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "  [WARN]  %s: %s\n", f, w)
		}
	}
	return b.String()
}

var (
	globalValidator *ConfigValidator
	validatorOnce   sync.Once
)

// GetGlobalValidator 获取全局验证器
func GetGlobalValidator() *ConfigValidator {
	validatorOnce.Do(func() {
		globalValidator = NewConfigValidator()
	})
	return globalValidator
}

func oneOf(name string, allowed ...string) ValidatorFunc {
	return func(value interface{}) *ValidationResult {
		str, _ := value.(string)
		str = strings.ToLower(strings.TrimSpace(str))
		for _, a := range allowed {
			if str == a {
				return ok()
			}
		}
		return invalid(fmt.Sprintf("unknown %s %q, supported: %s", name, str, strings.Join(allowed, ", ")))
	}
}

func ok() *ValidationResult { return &ValidationResult{Valid: true} }

func invalid(msg string) *ValidationResult {
	return &ValidationResult{Valid: false, Errors: []string{msg}}
}

func warn(msg string) *ValidationResult {
	return &ValidationResult{Valid: true, Warnings: []string{msg}}
}
