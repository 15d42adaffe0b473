// Package entitlement provides domain models for plan-based quota enforcement.
//
// This package implements the entitlement bounded context, which is responsible for:
//   - Cataloging features (boolean switches, countable quotas, storage quotas) and plans
//   - Normalizing heterogeneous entitlement values into a canonical stored form
//   - Resolving the calendar period a usage counter belongs to (daily/weekly/monthly/yearly/lifetime)
//   - Tracking per-subject, per-feature, per-period usage counters
//
// Key Aggregates:
//   - Feature: A catalog entry describing one meterable or switchable capability
//   - Plan: A named tier owning Entitlement grants for a set of features
//   - FeatureUsage: One ledger row counting a subject's usage of a feature within one period
//
// Value Objects:
//   - Quota: Three-state numeric entitlement (none, unlimited, bounded)
//   - Amount: A requested consumption or refund quantity (count or byte string)
//   - Subject: An opaque (type, id) pair identifying the consuming entity
//
// The consumption engine that enforces quotas on top of these models lives in
// the application layer; plan resolution against a billing provider lives at
// the infrastructure boundary.
package entitlement
