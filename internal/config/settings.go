// Package config loads process-level Settings through Viper's env/flag
// binding, and assembles the shared AppState the HTTP transport and CLI
// commands run against. It deliberately never touches the Policy document
// itself — that is hashed, and Viper's merge semantics have no notion of
// "the literal bytes this value came from".
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Settings holds every environment-driven, unhashed knob the gateway
// recognizes.
type Settings struct {
	PolicyPath          string `mapstructure:"policy_path"`
	Bind                string `mapstructure:"bind"`
	AuditPath           string `mapstructure:"audit_path"`
	ArtifactsDir        string `mapstructure:"artifacts_dir"`
	Upstream            string `mapstructure:"upstream"`
	OpaURL              string `mapstructure:"opa_url"`
	OpaPath             string `mapstructure:"opa_path"`
	SandboxPath         string `mapstructure:"sandbox_path"`
	SandboxTimeoutMs    int    `mapstructure:"sandbox_timeout_ms"`
	OperatorSKB64       string `mapstructure:"operator_sk_b64"`
	DevSigner           bool   `mapstructure:"dev_signer"`
	EvidenceS3Bucket    string `mapstructure:"evidence_s3_bucket"`
	EvidenceS3Region    string `mapstructure:"evidence_s3_region"`
	LogLevel            string `mapstructure:"log_level"`
	MetricsAddr         string `mapstructure:"metrics_addr"`
}

// LoadSettings binds AEGIS_* environment variables and applies the
// documented defaults.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("policy_path", "policy/packs/policy.json")
	v.SetDefault("bind", "127.0.0.1:8088")
	v.SetDefault("audit_path", "aegis_audit.jsonl")
	v.SetDefault("artifacts_dir", "artifacts")
	v.SetDefault("opa_path", "aegis/decision/result")
	v.SetDefault("log_level", "info")
	v.SetDefault("dev_signer", false)

	bindEnv(v, "policy_path", "POLICY_PATH")
	bindEnv(v, "bind", "BIND")
	bindEnv(v, "audit_path", "AUDIT_PATH")
	bindEnv(v, "artifacts_dir", "ARTIFACTS_DIR")
	bindEnv(v, "upstream", "UPSTREAM")
	bindEnv(v, "opa_url", "OPA_URL")
	bindEnv(v, "opa_path", "OPA_PATH")
	bindEnv(v, "sandbox_path", "SANDBOX_PATH")
	bindEnv(v, "sandbox_timeout_ms", "SANDBOX_TIMEOUT_MS")
	bindEnv(v, "operator_sk_b64", "OPERATOR_SK_B64")
	bindEnv(v, "dev_signer", "DEV_SIGNER")
	bindEnv(v, "evidence_s3_bucket", "EVIDENCE_S3_BUCKET")
	bindEnv(v, "evidence_s3_region", "EVIDENCE_S3_REGION")
	bindEnv(v, "log_level", "LOG_LEVEL")
	bindEnv(v, "metrics_addr", "METRICS_ADDR")

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}

	// AEGIS_DEV_SIGNER is documented as the literal string "1", not a
	// generic bool parse; Viper's bool coercion already accepts "1" but
	// we pin the check explicitly so the contract stays obvious to a
	// reader of this file rather than implicit in Viper's parsing rules.
	s.DevSigner = v.GetString("dev_signer") == "1" || v.GetBool("dev_signer")

	return &s, nil
}

func bindEnv(v *viper.Viper, key, envSuffix string) {
	_ = v.BindEnv(key, "AEGIS_"+envSuffix)
}
