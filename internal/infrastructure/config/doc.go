// Package config handles loading and validating hifilink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HIFILINK_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The API key, MQTT password and InfluxDB token should come from the environment
//   - Use Redacted before exposing the configuration over the API
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.IR.TxFreq)
package config
