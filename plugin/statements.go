// Copyright 2025 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	versionPattern = regexp.MustCompile(`^[0-9A-Za-z.+\-_]+$`)
	keyPattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// QuoteIdent renders s as a double-quoted identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteLiteral renders s as a single-quoted string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ValidateVersion rejects versions that cannot be emitted unquoted.
func ValidateVersion(version string) error {
	if !versionPattern.MatchString(version) {
		return errors.Errorf("invalid plugin version %q", version)
	}
	return nil
}

func settingKey(key string) string {
	if keyPattern.MatchString(key) {
		return key
	}
	return QuoteIdent(key)
}

// Statements builds the activation statements of one plugin version.
type Statements struct {
	name    string
	version string
}

func NewStatements(name, version string) (*Statements, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, errors.Wrapf(err, "plugin %s", name)
	}
	return &Statements{name: QuoteIdent(name), version: version}, nil
}

func (s *Statements) Create() string {
	return fmt.Sprintf("CREATE PLUGIN %s %s;", s.name, s.version)
}

func (s *Statements) SetMigrationContext(key, value string) string {
	return fmt.Sprintf("ALTER PLUGIN %s %s SET migration_context.%s=%s;",
		s.name, s.version, settingKey(key), QuoteLiteral(value))
}

func (s *Statements) MigrateTo() string {
	return fmt.Sprintf("ALTER PLUGIN %s MIGRATE TO %s;", s.name, s.version)
}

func (s *Statements) AddService(service, tier string) string {
	return fmt.Sprintf("ALTER PLUGIN %s %s ADD SERVICE %s TO TIER %s;",
		s.name, s.version, QuoteIdent(service), QuoteIdent(tier))
}

func (s *Statements) Enable() string {
	return fmt.Sprintf("ALTER PLUGIN %s %s ENABLE;", s.name, s.version)
}

// SetServiceConfig assigns a JSON encoded value to a service setting.
func (s *Statements) SetServiceConfig(service, key, jsonValue string) string {
	return fmt.Sprintf("ALTER PLUGIN %s %s SET %s.%s=%s;",
		s.name, s.version, settingKey(service), settingKey(key), QuoteLiteral(jsonValue))
}
