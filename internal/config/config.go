// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config loads authenticators and metadata providers from a YAML file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"sigs.k8s.io/yaml"

	"github.com/m-martinez/who-ldap/internal/plog"
)

// FromPath loads a Config from a provided local file path, inserts any
// defaults, and verifies that the config is valid.
func FromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Load(data)
}

// Load is FromPath for a document that is already in memory.
func Load(data []byte) (*Config, error) {
	var config Config
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := validateUniqueIDs(&config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &config, nil
}

// ApplyLogging sets the global log level and format. Hosts that configure logging themselves skip it.
func (c *Config) ApplyLogging(ctx context.Context) error {
	if err := plog.ValidateAndSetLogLevelAndFormatGlobally(ctx, plog.LogSpec{Level: c.Log.Level, Format: c.Log.Format}); err != nil {
		return fmt.Errorf("validate log level: %w", err)
	}
	return nil
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by the names used in the YAML file
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validate(config *Config) error {
	err := structValidator.Struct(config)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s %s", fieldPath(fe), describe(fe)))
	}
	return utilerrors.NewAggregate(errs)
}

// fieldPath drops the Go type name validator puts in front of every namespace.
func fieldPath(fe validator.FieldError) string {
	_, path, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		return fe.Namespace()
	}
	return path
}

// yamlNames covers the fields that other fields' validation rules refer to.
var yamlNames = map[string]string{
	"Type":         "type",
	"BindDN":       "bind_dn",
	"BindPassword": "bind_pass",
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		condition := strings.Fields(fe.Param())
		if len(condition) == 2 {
			return fmt.Sprintf("is required when %s is %q", yamlNames[condition[0]], condition[1])
		}
		return "is required"
	case "excluded_if":
		condition := strings.Fields(fe.Param())
		if len(condition) == 2 {
			return fmt.Sprintf("is not allowed when %s is %q", yamlNames[condition[0]], condition[1])
		}
		return "is not allowed"
	case "required_with":
		return fmt.Sprintf("is required together with %s", yamlNames[fe.Param()])
	case "oneof":
		return fmt.Sprintf("must be one of %q", strings.Fields(fe.Param()))
	case "base64":
		return "must be base64 encoded"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func validateUniqueIDs(config *Config) error {
	seen := make(map[string]struct{}, len(config.Authenticators)+len(config.MetadataProviders))
	var errs []error
	check := func(id string) {
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("id %q is used more than once", id))
			return
		}
		seen[id] = struct{}{}
	}
	for _, a := range config.Authenticators {
		check(a.ID)
	}
	for _, p := range config.MetadataProviders {
		check(p.ID)
	}
	return utilerrors.NewAggregate(errs)
}
