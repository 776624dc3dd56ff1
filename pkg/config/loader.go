package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. EVENTA_SERVER_ADDR
const EnvPrefix = "EVENTA"

// Load reads a YAML or JSON file into target. The format follows the file
// extension; anything other than .json is parsed as YAML.
func Load(path string, target any) error {
	// #nosec G304 -- path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	unmarshal, format := yaml.Unmarshal, "YAML"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal, format = json.Unmarshal, "JSON"
	}
	if err := unmarshal(data, target); err != nil {
		return fmt.Errorf("parse %s config %s: %w", format, path, err)
	}
	return nil
}

// SaveYAML writes config to path
func SaveYAML(path string, config any) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	// configs may carry DSNs with credentials
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// envField is one leaf of a config struct and the variable that overrides it
type envField struct {
	key   string
	value reflect.Value
}

// envFields walks target and returns every settable leaf with its key.
// Keys are PREFIX_SECTION_FIELD built from the yaml tags, upper-cased
// (Server.OutboxSize with tag outbox_size becomes EVENTA_SERVER_OUTBOX_SIZE).
func envFields(prefix string, target any) ([]envField, error) {
	if prefix == "" {
		prefix = EnvPrefix
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("config target must be a pointer to a struct, got %T", target)
	}
	var fields []envField
	collectEnvFields(prefix, val.Elem(), &fields)
	return fields, nil
}

func collectEnvFields(prefix string, val reflect.Value, out *[]envField) {
	typ := val.Type()
	for i := range val.NumField() {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		key := prefix + "_" + envName(typ.Field(i))
		if field.Kind() == reflect.Struct && field.Type() != timeType {
			collectEnvFields(key, field, out)
			continue
		}
		*out = append(*out, envField{key: key, value: field})
	}
}

func envName(f reflect.StructField) string {
	name := f.Name
	if tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ","); tag != "" && tag != "-" {
		name = tag
	}
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// EnvKeys lists the environment variables ApplyEnvOverrides consults for target
func EnvKeys(prefix string, target any) ([]string, error) {
	fields, err := envFields(prefix, target)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys, nil
}

// ApplyEnvOverrides sets the fields of target from environment variables
// named as EnvKeys reports. Unset and empty variables are ignored.
func ApplyEnvOverrides(prefix string, target any) error {
	fields, err := envFields(prefix, target)
	if err != nil {
		return err
	}
	for _, f := range fields {
		raw, ok := os.LookupEnv(f.key)
		if !ok || raw == "" {
			continue
		}
		if err := setFromString(f.value, raw); err != nil {
			return fmt.Errorf("env %s: %w", f.key, err)
		}
	}
	return nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

func setFromString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", raw)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		field.SetBool(b)
	case reflect.Slice:
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setFromString(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return err
			}
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
