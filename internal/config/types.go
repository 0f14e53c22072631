// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/m-martinez/who-ldap/internal/plog"
)

const (
	AuthenticatorTypePattern = "pattern"
	AuthenticatorTypeSearch  = "search"

	ProviderTypeAttributes = "attributes"
	ProviderTypeGroups     = "groups"
)

// Config contains every plugin a host can load from one file.
type Config struct {
	Log               LogSpec             `json:"log"`
	Token             *TokenSpec          `json:"token,omitempty"`
	Authenticators    []AuthenticatorSpec `json:"authenticators" validate:"dive"`
	MetadataProviders []ProviderSpec      `json:"mdproviders" validate:"dive"`
}

// LogSpec configures plog for hosts that let this package set up logging.
type LogSpec struct {
	Level  plog.LogLevel  `json:"level,omitempty" validate:"omitempty,oneof=info debug trace all"`
	Format plog.LogFormat `json:"format,omitempty"`
}

// TokenSpec enables sealed user data tokens. Both keys are base64 encoded.
type TokenSpec struct {
	HashKey  string `json:"hash_key" validate:"required,base64"`
	BlockKey string `json:"block_key,omitempty" validate:"omitempty,base64"`
}

// AuthenticatorSpec configures one authenticator.
type AuthenticatorSpec struct {
	ID   string `json:"id" validate:"required"`
	Type string `json:"type" validate:"required,oneof=pattern search"`

	URL          string          `json:"url" validate:"required"`
	StartTLS     bool            `json:"start_tls,omitempty"`
	CABundle     string          `json:"ca_bundle,omitempty"`
	Timeout      metav1.Duration `json:"timeout,omitempty"`
	BindDN       string          `json:"bind_dn,omitempty" validate:"required_if=Type search,excluded_if=Type pattern"`
	BindPassword string          `json:"bind_pass,omitempty" validate:"required_if=Type search,excluded_if=Type pattern"`

	BaseDN          string `json:"base_dn" validate:"required"`
	NamingAttribute string `json:"naming_attribute,omitempty"`
	ReturnedID      string `json:"returned_id,omitempty"`

	// search only
	SearchScope string `json:"search_scope,omitempty" validate:"excluded_if=Type pattern"`
	Restrict    string `json:"restrict,omitempty" validate:"excluded_if=Type pattern"`
}

// ProviderSpec configures one metadata provider.
type ProviderSpec struct {
	ID   string `json:"id" validate:"required"`
	Type string `json:"type" validate:"required,oneof=attributes groups"`

	URL          string          `json:"url" validate:"required"`
	StartTLS     bool            `json:"start_tls,omitempty"`
	CABundle     string          `json:"ca_bundle,omitempty"`
	Timeout      metav1.Duration `json:"timeout,omitempty"`
	BindDN       string          `json:"bind_dn,omitempty" validate:"required_with=BindPassword"`
	BindPassword string          `json:"bind_pass,omitempty" validate:"required_with=BindDN"`

	BaseDN string `json:"base_dn,omitempty" validate:"required_if=Type groups"`
	Filter string `json:"filterstr,omitempty"`

	// Name is the identity key to write to. Required for groups.
	Name string `json:"name,omitempty" validate:"required_if=Type groups"`

	// attributes only
	Attributes Attributes `json:"attributes,omitempty"`
	Flatten    bool       `json:"flatten,omitempty" validate:"excluded_if=Type groups"`

	// groups only
	SearchScope string `json:"search_scope,omitempty" validate:"excluded_if=Type attributes"`
	ReturnedID  string `json:"returned_id,omitempty" validate:"excluded_if=Type attributes"`
}
