// Copyright 2026 the who-ldap contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus metrics for authentication and metadata lookups.
//
// Methods handle a nil receiver gracefully, so a nil *Metrics is a no-op when metrics are disabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values for the result label.
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultNotFound    = "not_found"
	ResultUnavailable = "unavailable"
)

type Metrics struct {
	// Authentications counts authentication attempts.
	// Labels: authenticator, result=[success, failure]
	Authentications *prometheus.CounterVec

	// AuthenticationDuration is how long each attempt took, including all directory round trips.
	// Labels: authenticator
	AuthenticationDuration *prometheus.HistogramVec

	// MetadataLookups counts metadata provider calls.
	// Labels: provider, result=[success, not_found, unavailable]
	MetadataLookups *prometheus.CounterVec
}

// New creates the metrics and registers them with registerer, or prometheus.DefaultRegisterer when nil.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Authentications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "who_ldap_authentications_total",
				Help: "Total LDAP authentication attempts by authenticator and result",
			},
			[]string{"authenticator", "result"},
		),
		AuthenticationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "who_ldap_authentication_duration_seconds",
				Help:    "LDAP authentication duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"authenticator"},
		),
		MetadataLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "who_ldap_metadata_lookups_total",
				Help: "Total LDAP metadata lookups by provider and result",
			},
			[]string{"provider", "result"},
		),
	}

	for _, c := range []prometheus.Collector{m.Authentications, m.AuthenticationDuration, m.MetadataLookups} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordAuthentication records one authentication attempt that started at start.
func (m *Metrics) RecordAuthentication(authenticator string, success bool, start time.Time) {
	if m == nil {
		return
	}
	result := ResultFailure
	if success {
		result = ResultSuccess
	}
	m.Authentications.WithLabelValues(authenticator, result).Inc()
	m.AuthenticationDuration.WithLabelValues(authenticator).Observe(time.Since(start).Seconds())
}

// RecordMetadataLookup records one metadata lookup with one of the Result* values.
func (m *Metrics) RecordMetadataLookup(provider, result string) {
	if m == nil {
		return
	}
	m.MetadataLookups.WithLabelValues(provider, result).Inc()
}
