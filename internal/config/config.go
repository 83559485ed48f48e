// Package config loads daemon options from a TOML file, ALOHACAP_*
// environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const envPrefix = "ALOHACAP_"

// Options for alohacapd. Each field maps to the flag named after it
// ("FrequencyMhz" is --frequency-mhz), a dotted TOML key and an environment
// variable.
type Options struct {
	Config string

	Device       string  `toml:"capture.device" env:"DEVICE"`
	Width        int     `toml:"capture.width" env:"WIDTH"`
	Height       int     `toml:"capture.height" env:"HEIGHT"`
	Input        int     `toml:"capture.input" env:"INPUT"`
	Standard     int     `toml:"capture.standard" env:"STANDARD"`
	Format       int     `toml:"capture.format" env:"FORMAT"`
	FrequencyMhz float64 `toml:"capture.frequency_mhz" env:"FREQUENCY_MHZ"`
	Retries      int     `toml:"capture.retries" env:"RETRIES"`
	ManualOpen   bool    `toml:"capture.manual_open" env:"MANUAL_OPEN"`
	RepeatFrames bool    `toml:"capture.repeat_frames" env:"REPEAT_FRAMES"`

	Listen     string `toml:"server.listen" env:"LISTEN"`
	Fps        int    `toml:"server.fps" env:"FPS"`
	Quality    int    `toml:"server.quality" env:"QUALITY"`
	MaxClients int    `toml:"server.max_clients" env:"MAX_CLIENTS"`

	LogLevel string `toml:"logging.level" env:"LOG_LEVEL"`
}

func Defaults() Options {
	return Options{
		Device:   "/dev/video0",
		Width:    320,
		Height:   240,
		Input:    -1,
		Standard: -1,
		Format:   -1,
		Retries:  10,
		Listen:   ":8000",
		Fps:      25,
		Quality:  75,
		LogLevel: "info",
	}
}

// Load fills opts from the TOML file named by opts.Config and from the
// environment. Fields whose flag was set explicitly in flags are left alone.
// A missing config file is not an error.
func Load(opts *Options, flags *pflag.FlagSet) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changed := make(map[string]bool)
	if flags != nil {
		flags.Visit(func(f *pflag.Flag) {
			changed[f.Name] = true
		})
	}

	if opts.Config != "" {
		data, err := os.ReadFile(opts.Config)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return errors.Wrap(err, "read config")
		default:
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return errors.Wrapf(err, "parse %s", opts.Config)
			}
			for i := 0; i < t.NumField(); i++ {
				f := t.Field(i)
				key := f.Tag.Get("toml")
				if key == "" || changed[FlagName(f.Name)] {
					continue
				}
				if value := lookup(doc, key); value != nil {
					if err := set(v.Field(i), value); err != nil {
						return errors.Wrapf(err, "%s: %s", opts.Config, key)
					}
				}
			}
		}
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		env := f.Tag.Get("env")
		if env == "" || changed[FlagName(f.Name)] {
			continue
		}
		if s, ok := os.LookupEnv(envPrefix + env); ok && s != "" {
			if err := setString(v.Field(i), s); err != nil {
				return errors.Wrapf(err, "%s%s", envPrefix, env)
			}
		}
	}

	return nil
}

// FlagName converts a field name to its flag name, e.g. "LogLevel" to
// "log-level".
func FlagName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup resolves a dotted key in a decoded TOML document.
func lookup(doc map[string]any, key string) any {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := doc[part].(map[string]any)
		if !ok {
			return nil
		}
		doc = next
	}
	return doc[parts[len(parts)-1]]
}

func set(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
			return nil
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
			return nil
		}
	case reflect.Int:
		if i, ok := value.(int64); ok {
			field.SetInt(i)
			return nil
		}
	case reflect.Float64:
		switch x := value.(type) {
		case float64:
			field.SetFloat(x)
			return nil
		case int64:
			field.SetFloat(float64(x))
			return nil
		}
	}
	return errors.Errorf("cannot use %T value as %s", value, field.Kind())
}

func setString(field reflect.Value, s string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int:
		i, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		field.SetInt(int64(i))
	case reflect.Float64:
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		field.SetFloat(x)
	default:
		return errors.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
