// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package cfgstruct binds configuration structs to command-line flags.
//
// Fields declare their flag metadata through struct tags:
//
//	type Config struct {
//		Interval time.Duration `help:"how often to run" default:"5m" testDefault:"$TESTINTERVAL"`
//		Workers  int           `help:"worker count" default:"4" devDefault:"1"`
//	}
//
// Nested structs contribute dot-separated prefixes, so a field Chat.Hub.Limit
// becomes the flag --chat.hub.limit. Which default column applies is decided
// by the defaults type ("release", "dev" or "test").
package cfgstruct

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	// DefaultsRelease selects release defaults.
	DefaultsRelease = "release"
	// DefaultsDev selects development defaults.
	DefaultsDev = "dev"
	// DefaultsTest selects test defaults.
	DefaultsTest = "test"
)

// DefaultsEnvName is the environment variable consulted for the defaults type.
const DefaultsEnvName = "TEMPORA_DEFAULTS"

// DefaultsType returns the type of defaults (release/dev/test) to use,
// based on the process environment.
func DefaultsType() string {
	dt := strings.ToLower(os.Getenv(DefaultsEnvName))
	switch dt {
	case DefaultsRelease, DefaultsDev, DefaultsTest:
		return dt
	}
	return DefaultsDev
}

type bindConfig struct {
	variables map[string]string
	defaults  string
}

// BindOpt modifies Bind behavior.
type BindOpt func(*bindConfig)

// ConfDir sets the value the $CONFDIR placeholder expands to.
func ConfDir(dir string) BindOpt {
	return func(c *bindConfig) { c.variables["CONFDIR"] = dir }
}

// UseReleaseDefaults forces the release defaults column.
func UseReleaseDefaults() BindOpt {
	return func(c *bindConfig) { c.defaults = DefaultsRelease }
}

// UseDevDefaults forces the development defaults column.
func UseDevDefaults() BindOpt {
	return func(c *bindConfig) { c.defaults = DefaultsDev }
}

// UseTestDefaults forces the test defaults column.
func UseTestDefaults() BindOpt {
	return func(c *bindConfig) { c.defaults = DefaultsTest }
}

// DefaultsFlag adds the --defaults flag to the command and returns a BindOpt
// that applies its value.
func DefaultsFlag(cmd *cobra.Command) BindOpt {
	value := DefaultsType()
	cmd.PersistentFlags().String("defaults", value,
		"determines which set of configuration defaults to use. can be 'dev', 'test' or 'release'")

	return func(c *bindConfig) { c.defaults = value }
}

// SetupFlag adds a persistent string flag to the command and stores its
// effective value in dest, honoring an environment override.
func SetupFlag(log *zap.Logger, cmd *cobra.Command, dest *string, name, value, usage string) {
	envName := "TEMPORA_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if env := os.Getenv(envName); env != "" {
		value = env
	}
	cmd.PersistentFlags().StringVar(dest, name, value, usage)
	*dest = value
}

// Bind registers one flag per leaf field of config, which must be a pointer
// to a struct. Field values are updated in place as flags are parsed.
func Bind(flags *pflag.FlagSet, config any, opts ...BindOpt) {
	ptr := reflect.ValueOf(config)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("invalid config type: %T, expected pointer to struct", config))
	}

	cfg := &bindConfig{
		variables: map[string]string{},
		defaults:  DefaultsType(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	bindStruct(flags, "", ptr.Elem(), cfg)
}

func bindStruct(flags *pflag.FlagSet, prefix string, val reflect.Value, cfg *bindConfig) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldval := val.Field(i)

		name := prefix + hyphenate(field.Name)
		if field.Anonymous {
			name = strings.TrimSuffix(prefix, ".")
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			childPrefix := name + "."
			if name == "" {
				childPrefix = ""
			}
			bindStruct(flags, childPrefix, fieldval, cfg)
			continue
		}

		help := field.Tag.Get("help")
		def, hasDef := pickDefault(field.Tag, cfg.defaults)
		def = expand(def, cfg.variables)
		if !hasDef && field.Tag.Get("help") == "" {
			// untagged leaf fields are not configuration
			continue
		}

		bindField(flags, name, fieldval, def, help)

		if field.Tag.Get("hidden") == "true" {
			_ = flags.MarkHidden(name)
		}
	}
}

func bindField(flags *pflag.FlagSet, name string, fieldval reflect.Value, def, help string) {
	addr := fieldval.Addr().Interface()
	switch p := addr.(type) {
	case *time.Duration:
		flags.DurationVar(p, name, mustDuration(name, def), help)
	case *string:
		flags.StringVar(p, name, def, help)
	case *bool:
		flags.BoolVar(p, name, mustBool(name, def), help)
	case *int:
		flags.IntVar(p, name, int(mustInt(name, def)), help)
	case *int64:
		flags.Int64Var(p, name, mustInt(name, def), help)
	case *uint:
		flags.UintVar(p, name, uint(mustInt(name, def)), help)
	case *uint64:
		flags.Uint64Var(p, name, uint64(mustInt(name, def)), help)
	case *float64:
		flags.Float64Var(p, name, mustFloat(name, def), help)
	case *[]string:
		var defs []string
		if def != "" {
			defs = strings.Split(def, ",")
		}
		flags.StringSliceVar(p, name, defs, help)
	default:
		panic(fmt.Sprintf("unsupported config field type %s for flag %q", fieldval.Type(), name))
	}
}

func pickDefault(tag reflect.StructTag, defaults string) (string, bool) {
	switch defaults {
	case DefaultsTest:
		if v, ok := tag.Lookup("testDefault"); ok {
			return v, true
		}
		if v, ok := tag.Lookup("devDefault"); ok {
			return v, true
		}
	case DefaultsDev:
		if v, ok := tag.Lookup("devDefault"); ok {
			return v, true
		}
	case DefaultsRelease:
		if v, ok := tag.Lookup("releaseDefault"); ok {
			return v, true
		}
	}
	v, ok := tag.Lookup("default")
	return v, ok
}

func expand(value string, variables map[string]string) string {
	for name, replacement := range variables {
		value = strings.ReplaceAll(value, "$"+name, replacement)
	}
	return value
}

// hyphenate converts CamelCase field names into hyphenated flag segments,
// keeping initialisms together: "MaxOpenConns" -> "max-open-conns",
// "APIKey" -> "api-key".
func hyphenate(name string) string {
	var out strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && isUpper(r) {
			prevLower := !isUpper(runes[i-1]) && runes[i-1] != '-'
			nextLower := i+1 < len(runes) && !isUpper(runes[i+1])
			if prevLower || (isUpper(runes[i-1]) && nextLower) {
				out.WriteRune('-')
			}
		}
		out.WriteRune(toLower(r))
	}
	return out.String()
}

func isUpper(r rune) bool { return 'A' <= r && r <= 'Z' }

func toLower(r rune) rune {
	if isUpper(r) {
		return r - 'A' + 'a'
	}
	return r
}

func mustDuration(name, v string) time.Duration {
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Sprintf("invalid duration default for %q: %q", name, v))
	}
	return d
}

func mustBool(name, v string) bool {
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Sprintf("invalid bool default for %q: %q", name, v))
	}
	return b
}

func mustInt(name, v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid integer default for %q: %q", name, v))
	}
	return n
}

func mustFloat(name, v string) float64 {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid float default for %q: %q", name, v))
	}
	return f
}
