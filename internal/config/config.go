package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag, e.g. TORFLEET_DAEMON_PATH.
const EnvPrefix = "TORFLEET_"

var durationType = reflect.TypeOf(time.Duration(0))

// Source layers the config file, TORFLEET_ env vars and command line flags
// onto an options struct. Fields are matched by their `toml:"table.key"` and
// `env:"KEY"` tags; a field whose flag was given on the command line is never
// overwritten.
type Source struct {
	path    string
	changed map[string]bool
}

// NewSource reads which flags of cmd were set on the command line. cmd may be nil.
func NewSource(path string, cmd *cobra.Command) *Source {
	changed := make(map[string]bool)
	if cmd != nil {
		mark := func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		}
		cmd.Flags().VisitAll(mark)
		cmd.PersistentFlags().VisitAll(mark)
	}
	return &Source{path: path, changed: changed}
}

// Path returns the config file path.
func (s *Source) Path() string {
	return s.path
}

// Load applies file < env < flags to opts, a pointer to a struct.
// A missing config file is not an error.
func (s *Source) Load(opts any) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	tables, err := readTables(s.path)
	if err != nil {
		return err
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if s.changed[fieldNameToFlag(fieldType.Name)] {
			continue
		}

		if tomlPath := fieldType.Tag.Get("toml"); tomlPath != "" {
			if value := getNestedValue(tables, tomlPath); value != nil {
				setFieldValue(field, value)
			}
		}
		if envKey := fieldType.Tag.Get("env"); envKey != "" {
			if envValue := os.Getenv(EnvPrefix + envKey); envValue != "" {
				setFieldValueFromString(field, envValue)
			}
		}
	}
	return nil
}

// Resolve returns a copy of base with the current file and env applied under
// the flags. base must hold only defaults and parsed flags, so a key removed
// from the file falls back to its default on the next Resolve.
func Resolve[T any](s *Source, base T) (T, error) {
	fresh := base
	err := s.Load(&fresh)
	return fresh, err
}

// LoadConfig loads configuration with proper precedence: CLI args > env vars > config file.
// The file path is taken from the struct's Config field. If cmd is provided,
// flags explicitly set via CLI will not be overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	var configPath string
	if f := reflect.ValueOf(opts).Elem().FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		configPath = f.String()
	}
	return NewSource(configPath, cmd).Load(opts)
}

// readTables parses the TOML file at path. A missing file or empty path
// yields no tables.
func readTables(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var tables map[string]any
	if err := toml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return tables, nil
}

// SplitList splits a comma-separated setting, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Port" -> "port".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			return nil
		}
	}
	return nil
}

// setFieldValue sets a field from a decoded TOML value. Durations are written
// as strings ("5s"); a comma string or an array fills a []string.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if s, ok := value.(string); ok {
			setFieldValueFromString(field, s)
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		switch v := value.(type) {
		case string:
			field.SetString(v)
		case []any:
			// A TOML array for a comma-separated option.
			items := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					items = append(items, s)
				}
			}
			field.SetString(strings.Join(items, ","))
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, ok := value.(int64); ok {
			field.SetInt(i)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		switch v := value.(type) {
		case []any:
			slice := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					slice = append(slice, s)
				}
			}
			field.Set(reflect.ValueOf(slice))
		case string:
			field.Set(reflect.ValueOf(SplitList(v)))
		}
	}
}

// setFieldValueFromString sets a field from an env var. Values that do not
// parse for the field's type are ignored.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(SplitList(value)))
		}
	}
}
