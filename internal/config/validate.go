package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks every section against its constraints.
func (c *Config) Validate() error {
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("invalid config: Metrics.Addr: required when metrics are enabled")
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ValidateLOD checks only the level-of-detail section.
func ValidateLOD(lod LODConfig) error {
	if err := validate.Struct(lod); err != nil {
		return fmt.Errorf("invalid lod section: %w", err)
	}
	return nil
}
